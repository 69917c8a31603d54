package constants

import "fmt"

// ============================================================================
// RECONCILIATION SESSION ERRORS
// ============================================================================

const (
	ErrSessionNotFound  = "Reconciliation session not found. Please upload the file again"
	ErrSessionExpired   = "Reconciliation session has expired. Please upload the file again"
	ErrSessionWrongUser = "This reconciliation session belongs to a different user"
)

// ============================================================================
// FILE UPLOAD ERRORS
// ============================================================================

const (
	ErrFileUploadFailed  = "File upload failed. Please check the file format and try again"
	ErrInvalidFileFormat = "Invalid file format. Please upload an XLSX, XLS or CSV file"
	ErrFileParsingFailed = "Failed to parse file contents. Please check the file format"
	ErrEmptyFile         = "Uploaded file is empty"
	ErrInvalidHeaders    = "File has invalid or missing column headers"
	ErrInvalidDataRow    = "Invalid data found in row %d: %s"
)

// ============================================================================
// PORTFOLIO ASSET ERRORS
// ============================================================================

const (
	ErrNoAssets      = "No portfolio assets found for this user"
	ErrAssetNotFound = "Portfolio asset not found or you don't have access to it"
)

// ============================================================================
// SCHEME REGISTRY ERRORS
// ============================================================================

const (
	ErrNoSchemes      = "No schemes found in the registry"
	ErrRegistryEmpty  = "Scheme registry is empty. Run a registry refresh first"
	ErrRefreshRunning = "A registry refresh is already in progress"
)

// ============================================================================
// DATABASE OPERATION ERRORS
// ============================================================================

const (
	ErrDatabaseConnection      = "Database connection failed. Please try again later"
	ErrQueryFailed             = "Database query failed. Please contact support if this persists"
	ErrTransactionFailed       = "Transaction failed. Please try again"
	ErrTransactionCommitFailed = "Failed to save changes. Please try again"
)

// ============================================================================
// GENERAL ERRORS
// ============================================================================

const (
	ErrInternalServer  = "Internal server error. Please contact support"
	ErrOperationFailed = "Operation failed. Please try again"
	ErrInvalidRequest  = "Invalid request. Please check your input"
)

// FormatRowError formats an error for a specific data row
func FormatRowError(rowNum int, reason string) string {
	return fmt.Sprintf(ErrInvalidDataRow, rowNum, reason)
}
