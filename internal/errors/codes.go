// Package errors provides structured error handling for iiifstore.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (database, text index, data directory)
//   - 3XX: Network errors (image service dereferencing, remote manifests)
//   - 4XX: Validation errors (IIIF input, query requests)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates database and index storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
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
	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeStoreLocked  = "ERR_202_STORE_LOCKED"
	ErrCodeStoreFailed  = "ERR_203_STORE_FAILED"
	ErrCodeCorruptIndex = "ERR_204_CORRUPT_INDEX"
	ErrCodeIndexFailed  = "ERR_205_INDEX_FAILED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeImageService       = "ERR_303_IMAGE_SERVICE"

	// Validation errors (400-499)
	ErrCodeInvalidInput         = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidResource      = "ERR_402_INVALID_RESOURCE"
	ErrCodeInvalidQuery         = "ERR_403_INVALID_QUERY"
	ErrCodeInvalidResourceClass = "ERR_404_INVALID_RESOURCE_CLASS"
	ErrCodeResourceNotFound     = "ERR_405_RESOURCE_NOT_FOUND"
	ErrCodeDuplicateResource    = "ERR_406_DUPLICATE_RESOURCE"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeIngestFailed = "ERR_503_INGEST_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreLocked, ErrCodeInvalidResourceClass:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeImageService:
		return true
	default:
		return false
	}
}
