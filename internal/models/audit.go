package models

import "time"

// Audit actions recorded for bulk operations.
const (
	AuditActionImportPreview = "IMPORT_PREVIEW"
	AuditActionImportExecute = "IMPORT_EXECUTE"
	AuditActionBulkDelete    = "RESULT_BULK_DELETE"
	AuditActionResultExport  = "RESULT_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
