// Package errs defines the typed errors surfaced by graph loading, querying
// and configuration.
//
// Every error carries a Code so callers can branch without string matching:
//
//	var qe *errs.QueryError
//	if errors.As(err, &qe) && qe.Code == errs.CodeUnresolvedPrefix {
//	    ...
//	}
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Code categorizes an error.
type Code string

// Load error codes.
const (
	CodeSourceUnreachable Code = "source_unreachable"
	CodeSourceStatus      Code = "source_status"
	CodeParseFailed       Code = "parse_failed"
	CodeFormatUnresolved  Code = "format_unresolved"
	CodeTimeout           Code = "timeout"
)

// Query error codes.
const (
	CodeSyntax            Code = "syntax"
	CodeUnresolvedPrefix  Code = "unresolved_prefix"
	CodeUnboundProjection Code = "unbound_projection"
	CodeEvaluation        Code = "evaluation"
	CodeUnboundReasoner   Code = "unbound_reasoner"
)

// Config error codes.
const (
	CodeConflictingFormat Code = "conflicting_format"
	CodeInvalidPrefix     Code = "invalid_prefix"
	CodeInvalidValue      Code = "invalid_value"
	CodeUnknownParser     Code = "unknown_parser"
	CodeReadFailed        Code = "read_failed"
)

// LoadError reports a source that could not be reached, parsed or matched
// to a format.
type LoadError struct {
	Code    Code
	Locator string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Code, e.Message)
	if e.Locator != "" {
		msg = fmt.Sprintf("load %s: %s (locator=%s)", e.Code, e.Message, e.Locator)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// QueryError reports a malformed query, an unresolvable prefix or a failure
// while extracting bindings.
type QueryError struct {
	Code    Code
	Query   string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("query %s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Unwrap() error { return e.Err }

// ConfigError reports a conflicting or invalid registration or setting.
type ConfigError struct {
	Code    Code
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config %s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("config %s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewLoadError creates a LoadError. A deadline in err overrides code with
// CodeTimeout.
func NewLoadError(code Code, locator string, err error, format string, args ...any) *LoadError {
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &LoadError{Code: code, Locator: locator, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewQueryError creates a QueryError. A deadline in err overrides code with
// CodeTimeout.
func NewQueryError(code Code, query string, err error, format string, args ...any) *QueryError {
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &QueryError{Code: code, Query: query, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewConfigError creates a ConfigError.
func NewConfigError(code Code, key string, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Key: key, Message: fmt.Sprintf(format, args...)}
}

// IsLoadError reports whether err wraps a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsQueryError reports whether err wraps a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// AsQueryError unwraps err to a QueryError.
func AsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// AsLoadError unwraps err to a LoadError.
func AsLoadError(err error) (*LoadError, bool) {
	var le *LoadError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// CodeOf returns the Code of the first typed error in err's chain, or "".
func CodeOf(err error) Code {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
