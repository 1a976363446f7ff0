// Package errors provides structured error handling for nrtindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index storage errors
//   - 4XX: Validation errors (queries, identifiers)
//   - 5XX: Internal and lifecycle errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates lifecycle and unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityRecoverable means the index needs a rebuild; the process carries on.
	SeverityRecoverable Severity = "RECOVERABLE"
	// SeverityError indicates the operation failed but the processor stays usable.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeIndexMissing     = "ERR_201_INDEX_MISSING"
	ErrCodeIndexFormatStale = "ERR_202_INDEX_FORMAT_STALE"
	ErrCodeStorageIO        = "ERR_203_STORAGE_IO"
	ErrCodeWriteLockHeld    = "ERR_204_WRITE_LOCK_HELD"
	ErrCodeIndexClosed      = "ERR_205_INDEX_CLOSED"

	// Validation errors (400-499)
	ErrCodeQuerySyntax  = "ERR_401_QUERY_SYNTAX"
	ErrCodeInvalidInput = "ERR_402_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeWriterClosed  = "ERR_502_WRITER_CLOSED"
	ErrCodeRebuildFailed = "ERR_503_REBUILD_FAILED"
	ErrCodePoolClosed    = "ERR_504_POOL_CLOSED"
	ErrCodeSourceFailed  = "ERR_505_SOURCE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_INDEX_MISSING"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexMissing, ErrCodeIndexFormatStale:
		return SeverityRecoverable
	case ErrCodeWriteLockHeld:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeWriteLockHeld, ErrCodeStorageIO:
		return true
	default:
		return false
	}
}
