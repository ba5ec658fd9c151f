// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	_ "embed"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var fileSchema = gojsonschema.NewBytesLoader(schemaJSON)

// ValidateDocument checks a YAML config file against the embedded JSON schema.
// Unknown keys, durations given as bare numbers and unknown log levels are
// rejected here, before the file is decoded into a Config.
func ValidateDocument(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if doc == nil {
		// Empty file
		return nil
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert config to JSON: %w", err)
	}

	result, err := gojsonschema.Validate(fileSchema, gojsonschema.NewBytesLoader(docJSON))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		return formatValidationErrors(result.Errors())
	}
	return nil
}

// formatValidationErrors formats JSON schema validation errors into a readable message
func formatValidationErrors(errors []gojsonschema.ResultError) error {
	if len(errors) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("configuration validation errors:")
	for i, err := range errors {
		fmt.Fprintf(&b, " %d. %s: %s;", i+1, err.Field(), err.Description())
	}

	return fmt.Errorf("%s", strings.TrimSuffix(b.String(), ";"))
}

// SchemaJSON returns the embedded config file schema.
func SchemaJSON() string {
	return string(schemaJSON)
}
