package models

import "time"

// AuditAction constants represent administrative scheduling actions.
const (
	AuditActionBlockDay        = "BLOCK_DAY"
	AuditActionUnblockDay      = "UNBLOCK_DAY"
	AuditActionBlockSlot       = "BLOCK_SLOT"
	AuditActionUnblockSlot     = "UNBLOCK_SLOT"
	AuditActionAppointmentEdit = "APPOINTMENT_UPDATE"
	AuditActionSoftDelete      = "APPOINTMENT_DELETE"
	AuditActionPurge           = "APPOINTMENT_PURGE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
