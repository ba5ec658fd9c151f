// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package device

import (
	_ "embed"
	"fmt"
	"strings"

	apperrors "github.com/soothill/delock-energy-collector/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var schema = mustLoadSchema()

func mustLoadSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("device: invalid embedded schema: %v", err))
	}
	return s
}

// ValidatePayload checks a Status 8 response body against the embedded schema.
// The returned error is always a *errors.ParseError.
func ValidatePayload(body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewParseError("", err)
	}

	if result.Valid() {
		return nil
	}

	return formatValidationErrors(result.Errors())
}

// formatValidationErrors reports the first schema violation, naming the field.
func formatValidationErrors(errs []gojsonschema.ResultError) error {
	first := errs[0]

	field := first.Field()
	if first.Type() == "required" {
		if property, ok := first.Details()["property"].(string); ok {
			field = property
		}
		return apperrors.NewParseError(field, fmt.Errorf("%w: %s", apperrors.ErrMissingField, first.Description()))
	}

	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}

	msg := first.Description()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return apperrors.NewParseError(field, fmt.Errorf("%s", msg))
}

// SchemaJSON returns the embedded response schema.
func SchemaJSON() string {
	return string(schemaJSON)
}
