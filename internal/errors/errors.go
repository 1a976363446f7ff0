package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for nrtindex.
// It carries enough context for the processor boundary to decide between
// "rebuild and return nothing" and "surface to the caller".
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_INDEX_MISSING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Validation, Internal).
	Category Category

	// Severity is the error severity level.
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

// Sentinels for errors.Is checks. Matching is by code, so any *Error with the
// same code satisfies errors.Is regardless of message or cause.
var (
	ErrIndexMissing     = New(ErrCodeIndexMissing, "index not found", nil)
	ErrIndexFormatStale = New(ErrCodeIndexFormatStale, "index format is stale or corrupt", nil)
	ErrStorageIO        = New(ErrCodeStorageIO, "index storage failure", nil)
	ErrWriteLockHeld    = New(ErrCodeWriteLockHeld, "index write lock is held", nil)
	ErrIndexClosed      = New(ErrCodeIndexClosed, "index is closed", nil)
	ErrQuerySyntax      = New(ErrCodeQuerySyntax, "invalid query syntax", nil)
	ErrInvalidInput     = New(ErrCodeInvalidInput, "invalid input", nil)
	ErrWriterClosed     = New(ErrCodeWriterClosed, "index writer is closed", nil)
	ErrRebuildFailed    = New(ErrCodeRebuildFailed, "index rebuild failed", nil)
	ErrPoolClosed       = New(ErrCodePoolClosed, "searcher pool is closed", nil)
	ErrSourceFailed     = New(ErrCodeSourceFailed, "entity source failed", nil)
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IndexMissing reports that no index exists at path.
func IndexMissing(path string, cause error) *Error {
	return New(ErrCodeIndexMissing, "index not found", cause).
		WithDetail("path", path).
		WithSuggestion("the index is rebuilt from the entity source automatically")
}

// IndexFormatStale reports an index that exists but cannot be read.
func IndexFormatStale(path string, cause error) *Error {
	return New(ErrCodeIndexFormatStale, "index format is stale or corrupt", cause).
		WithDetail("path", path).
		WithSuggestion("run a rebuild to recreate the index")
}

// StorageIO reports an unexpected storage failure.
func StorageIO(message string, cause error) *Error {
	return New(ErrCodeStorageIO, message, cause)
}

// QuerySyntax reports a query that could not be parsed.
func QuerySyntax(query string, cause error) *Error {
	return New(ErrCodeQuerySyntax, "invalid query syntax", cause).WithDetail("query", query)
}

// InvalidInput creates a validation error.
func InvalidInput(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// NeedsRebuild reports whether err means the index must be recreated from
// the entity source (missing, corrupt or too-old format).
func NeedsRebuild(err error) bool {
	return stderrors.Is(err, ErrIndexMissing) || stderrors.Is(err, ErrIndexFormatStale)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code from the first *Error in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category from the first *Error in the chain.
func GetCategory(err error) Category {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category
	}
	return ""
}
