// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the energy collector.
//
// Every failure that can happen inside one poll iteration is reported as
// one of the typed errors below. The collector loop does not inspect
// error strings or rely on type hierarchies: it calls KindOf and switches
// on the returned Kind.
//
// # Example Usage
//
//	err := errors.NewTimeoutError("read body", "http://192.168.178.39", ctxErr)
//	switch errors.KindOf(err) {
//	case errors.KindTimeout:
//	    // transient, retry sooner
//	}
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the retry policy.
type Kind int

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown Kind = iota
	// KindTimeout is a connect or read timeout against the device.
	KindTimeout
	// KindHTTPStatus is a non-2xx response from the device.
	KindHTTPStatus
	// KindParse is a malformed or incomplete device response.
	KindParse
	// KindWrite is a failed write to the time-series store.
	KindWrite
	// KindNetwork is a transport failure that is not a timeout.
	KindNetwork
	// KindConfig is a missing or invalid configuration value.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindParse:
		return "parse"
	case KindWrite:
		return "write"
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// KindOf returns the Kind of the outermost typed error in err's chain.
// A nil error has KindUnknown.
func KindOf(err error) Kind {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch e.(type) {
		case *ConfigError:
			return KindConfig
		case *TimeoutError:
			return KindTimeout
		case *HTTPStatusError:
			return KindHTTPStatus
		case *ParseError:
			return KindParse
		case *WriteError:
			return KindWrite
		case *NetworkError:
			return KindNetwork
		}
	}
	return KindUnknown
}

// TimeoutError represents a connect or read deadline exceeded against the device.
type TimeoutError struct {
	Op   string // Operation being performed (e.g., "connect", "read body")
	Addr string // Device address
	Err  error  // Underlying error
}

func (e *TimeoutError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("timeout %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("timeout %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(op, addr string, err error) *TimeoutError {
	return &TimeoutError{Op: op, Addr: addr, Err: err}
}

// IsTimeoutError checks if an error is a TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// HTTPStatusError represents a non-success HTTP status returned by the device.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status from %s: %s", e.URL, e.Status)
}

// NewHTTPStatusError creates a new HTTP status error.
func NewHTTPStatusError(url string, statusCode int, status string) *HTTPStatusError {
	if status == "" {
		status = fmt.Sprintf("%d", statusCode)
	}
	return &HTTPStatusError{URL: url, StatusCode: statusCode, Status: status}
}

// IsHTTPStatusError checks if an error is an HTTPStatusError.
func IsHTTPStatusError(err error) bool {
	var he *HTTPStatusError
	return errors.As(err, &he)
}

// ParseError represents a device response that is not valid or not complete.
type ParseError struct {
	Field string // Missing or invalid field, empty when the whole body is bad
	Err   error  // Underlying error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse device response (field=%s): %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse device response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new parse error.
func NewParseError(field string, err error) *ParseError {
	return &ParseError{Field: field, Err: err}
}

// IsParseError checks if an error is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// WriteError represents a failure reported by the time-series store.
type WriteError struct {
	Bucket string // Target bucket
	Points int    // Number of points in the rejected submission
	Err    error  // Underlying error
}

func (e *WriteError) Error() string {
	if e.Bucket != "" {
		return fmt.Sprintf("write %d points (bucket=%s): %v", e.Points, e.Bucket, e.Err)
	}
	return fmt.Sprintf("write %d points: %v", e.Points, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewWriteError creates a new write error.
func NewWriteError(bucket string, points int, err error) *WriteError {
	return &WriteError{Bucket: bucket, Points: points, Err: err}
}

// IsWriteError checks if an error is a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// NetworkError represents a network-related error.
type NetworkError struct {
	Op   string // Operation being performed (e.g., "connect", "mDNS lookup")
	Addr string // Network address (if applicable)
	Err  error  // Underlying error
}

func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("network %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("network %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("network %s failed", e.Op)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error.
func NewNetworkError(op string, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// IsNetworkError checks if an error is a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field or environment variable
	Value string // Invalid value (optional, redacted for secrets)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Sentinel errors for common conditions
var (
	// ErrMissingValue indicates a required configuration value is absent
	ErrMissingValue = errors.New("required value is missing")

	// ErrInvalidValue indicates a configuration value could not be used
	ErrInvalidValue = errors.New("invalid value")

	// ErrMissingField indicates a required measurement is absent from the device response
	ErrMissingField = errors.New("required field is missing")

	// ErrBodyTooLarge indicates the device response exceeded the size limit
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrServiceNotFound indicates an mDNS lookup returned no usable entry
	ErrServiceNotFound = errors.New("service not found")
)
