package constants

// Common error messages
const (
	ErrInvalidJSON        = "invalid json or missing fields"
	ErrMissingUserID      = "Missing or invalid user_id in body"
	ErrUserIDRequired     = "user_id required"
	ErrDB                 = "DB error"
	ErrInvalidRequestBody = "Invalid request body"
	ErrMethodNotAllowed   = "Method Not Allowed"
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "Content-Type"
)

// Date formats
const (
	DateTimeFormat = "2006-01-02 15:04:05"
	DateFormat     = "2006-01-02"
	DateFormatDash = "02-Jan-2006"
)

// NBSP shows up in AMC spreadsheet headers pasted from Excel
const NBSP = "\u00a0"
