package errors

import (
	stderrors "errors"
	"fmt"
)

// RecallError is the structured error type for sessionrecall.
// It carries enough context for logging, CLI presentation and MCP error mapping.
type RecallError struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_INDEX").
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
func (e *RecallError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RecallError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a RecallError with the same code,
// so sentinel values like ErrCorruptIndex work with errors.Is.
func (e *RecallError) Is(target error) bool {
	if t, ok := target.(*RecallError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RecallError) WithDetail(key, value string) *RecallError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RecallError) WithSuggestion(suggestion string) *RecallError {
	e.Suggestion = suggestion
	return e
}

// Sentinels for errors.Is comparisons. Only the code is significant.
var (
	ErrCorruptIndex        = &RecallError{Code: ErrCodeCorruptIndex}
	ErrIndexNotFound       = &RecallError{Code: ErrCodeIndexNotFound}
	ErrInvalidWeights      = &RecallError{Code: ErrCodeInvalidWeights}
	ErrInvalidThreshold    = &RecallError{Code: ErrCodeInvalidThreshold}
	ErrInvalidVector       = &RecallError{Code: ErrCodeInvalidVector}
	ErrDimensionMismatch   = &RecallError{Code: ErrCodeDimensionMismatch}
	ErrSemanticUnavailable = &RecallError{Code: ErrCodeSemanticUnavailable}
	ErrQueueFull           = &RecallError{Code: ErrCodeQueueFull}
)

// New creates a new RecallError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RecallError {
	return &RecallError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *RecallError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a RecallError from an existing error.
func Wrap(code string, err error) *RecallError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RecallError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RecallError {
	return New(ErrCodeInvalidInput, message, cause)
}

// CorruptIndexError reports a malformed persisted file. Callers recover by
// rebuilding from session files.
func CorruptIndexError(path string, cause error) *RecallError {
	return New(ErrCodeCorruptIndex, "persisted index is corrupt: "+path, cause).
		WithDetail("path", path).
		WithSuggestion("run 'recall rebuild' to regenerate the index from session files")
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re *RecallError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCode extracts the error code from a RecallError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RecallError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}
