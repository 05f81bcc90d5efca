package models

import (
	"fmt"
	"time"
)

// AppointmentStatus is the review state of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending  AppointmentStatus = "pending"
	AppointmentStatusApproved AppointmentStatus = "approved"
	AppointmentStatusRejected AppointmentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusApproved, AppointmentStatusRejected:
		return true
	default:
		return false
	}
}

// Appointment is a meeting slot requested with an organizational unit.
// StartTime and EndTime always fall on AppointmentDate.
type Appointment struct {
	ID              int64             `db:"id" json:"id"`
	FullName        string            `db:"full_name" json:"full_name"`
	UserID          *int64            `db:"user_id" json:"user_id,omitempty"`
	UnitID          int64             `db:"unit_id" json:"unit_id"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointment_date"`
	StartTime       time.Time         `db:"start_time" json:"start_time"`
	EndTime         time.Time         `db:"end_time" json:"end_time"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Agenda          *string           `db:"agenda" json:"agenda,omitempty"`
	Email           *string           `db:"email" json:"email,omitempty"`
	CreatedBy       string            `db:"created_by" json:"created_by"`
	IsDeleted       bool              `db:"is_deleted" json:"is_deleted"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter narrows appointment listings. Soft-deleted rows are excluded unless IsDeleted is true.
type AppointmentFilter struct {
	Status    *AppointmentStatus
	Date      *time.Time
	From      *time.Time
	To        *time.Time
	UnitID    *int64
	UserID    *int64
	IsDeleted bool
	Page      int
	PageSize  int
}

// AppointmentConflict describes the approved appointment holding a requested slot.
type AppointmentConflict struct {
	AppointmentID int64  `json:"appointment_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

// AppointmentConflictError is returned when a requested slot collides with an approved appointment.
type AppointmentConflictError struct {
	Conflict AppointmentConflict
}

// Error implements the error interface for conflict errors.
func (e *AppointmentConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("slot already booked from %s to %s", e.Conflict.StartTime, e.Conflict.EndTime)
}
