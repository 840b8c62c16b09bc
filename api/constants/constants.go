package constants

// Common error messages
const (
	ErrInvalidSession     = "invalid or expired session_id"
	ErrInvalidJSON        = "invalid json or missing fields"
	ErrSessionIDRequired  = "session_id required"
	ErrMethodNotAllowed   = "Method Not Allowed"
	ErrNoFileUploaded     = "no file uploaded"
	ErrUnsupportedFormat  = "unsupported file format: expected csv, xlsx or xls"
	ErrMappingFrozen      = "field mapping is frozen after the first rule run"
	ErrAnalysisNotRun     = "analysis has not been run for this session"
	ErrValidationRunning  = "validation already in progress"
	ErrSelectionEmpty     = "no rows selected for external validation"
	ErrRegStoreEmpty      = "no regulation documents ingested"
	ErrQuestionRequired   = "question required"
	ErrUnknownField       = "unknown canonical field"
	ErrColumnNotInTable   = "column not present in uploaded table"
)

// Content Types
const (
	ContentTypeJSON = "application/json"
	HeaderContent   = "Content-Type"
)

// Date formats
const (
	DateTimeFormat  = "2006-01-02 15:04:05"
	DateFormat      = "2006-01-02"
	ExportTimestamp = "20060102_150405"
)
