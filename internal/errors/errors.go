package errors

import (
	"errors"
	"fmt"
)

// IIIFError is the structured error type for iiifstore.
// It carries enough context for logging, CLI output and MCP error mapping.
type IIIFError struct {
	// Code is the unique error code (e.g., "ERR_402_INVALID_RESOURCE").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *IIIFError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IIIFError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, &IIIFError{Code: ...}) works through wrapping.
func (e *IIIFError) Is(target error) bool {
	if t, ok := target.(*IIIFError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *IIIFError) WithDetail(key, value string) *IIIFError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IIIFError) WithSuggestion(suggestion string) *IIIFError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IIIFError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IIIFError {
	return &IIIFError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IIIFError from an existing error.
func Wrap(code string, err error) *IIIFError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IIIFError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a storage-related error.
func StoreError(message string, cause error) *IIIFError {
	return New(ErrCodeStoreFailed, message, cause)
}

// NetworkError creates a network-related error. Network errors are retryable.
func NetworkError(message string, cause error) *IIIFError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// InvalidResource reports IIIF input that cannot be decomposed.
func InvalidResource(message string) *IIIFError {
	return New(ErrCodeInvalidResource, message, nil).
		WithSuggestion("check that every manifest, canvas, range and annotation has an id or @id")
}

// InvalidQuery reports a malformed search request.
func InvalidQuery(message string) *IIIFError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// NotFound reports a missing resource.
func NotFound(id string) *IIIFError {
	return New(ErrCodeResourceNotFound, fmt.Sprintf("resource %s not found", id), nil).
		WithDetail("id", id)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IIIFError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first IIIFError in err's chain.
func As(err error) (*IIIFError, bool) {
	var ie *IIIFError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsRetryable checks if any IIIFError in the chain is retryable.
func IsRetryable(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return errors.Is(err, &IIIFError{Code: code})
}

// GetCode extracts the error code, or "" when err is not an IIIFError.
func GetCode(err error) string {
	if ie, ok := As(err); ok {
		return ie.Code
	}
	return ""
}
