// Package errors defines the structured error type used across the identity
// gateway. Every failure that crosses a package boundary is an [*Error]
// carrying a machine-readable [Code], a message that is safe to show to
// callers, and an optional cause that is only ever logged.
//
// # Taxonomy
//
// Codes are grouped by category, and the category decides how a failure is
// surfaced:
//
//   - AUTH: the presented credential is missing or not trusted (401)
//   - AUTHZ: the identity is valid but lacks access (403)
//   - VAL: request input is malformed (400)
//   - NF: a tenant assignment or user setting does not exist (404)
//   - CFG, INT: configuration and internal failures (500)
//   - UNAVAIL, TIMEOUT: a dependency is down or slow; the next request may succeed
//
// # Usage
//
//	if err := store.UpsertSetting(ctx, s); err != nil {
//	    return errors.Wrap(err, errors.CodeInternalStore, "failed to persist setting")
//	}
//
//	if errors.IsTransient(err) {
//	    // respond 503, do not poison shared state
//	}
package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is a structured error with a stable code. Fields are not modified
// after construction; the With* methods return copies.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_003").
	Code Code

	// Message is safe to return to clients. It must not contain token
	// contents, key material or store addresses.
	Message string

	// Cause is the underlying error, if any. It is reported in logs only.
	Cause error

	// Details holds structured context for operators, such as the tenant
	// or the rejected signing algorithm.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause so that errors.Is and errors.As see through the
// wrapper (e.g., errors.Is(err, redis.Nil)).
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code for the error's category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case categoryValidation:
		return http.StatusBadRequest
	case categoryAuthentication:
		return http.StatusUnauthorized
	case categoryAuthorization:
		return http.StatusForbidden
	case categoryNotFound:
		return http.StatusNotFound
	case categoryUnavailable:
		return http.StatusServiceUnavailable
	case categoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a copy of e with key set to value in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	maps.Copy(details, e.Details)
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Cause: e.Cause, Details: details}
}

// WithDetails returns a copy of e with all of details merged into Details.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{Code: e.Code, Message: e.Message, Cause: e.Cause, Details: merged}
}

// LogAttrs returns slog key/value pairs describing e, so the cause and
// details reach the log but never a response body.
func (e *Error) LogAttrs() []any {
	attrs := []any{"code", string(e.Code), "message", e.Message}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	return attrs
}

// Format implements fmt.Formatter. %+v prints the code, message, details
// and the full cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fmt.Fprint(s, e.Error())
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
