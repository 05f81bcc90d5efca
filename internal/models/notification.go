package models

// NotificationKind classifies appointment notifications.
type NotificationKind string

const (
	NotificationApproved    NotificationKind = "appointment_approved"
	NotificationRejected    NotificationKind = "appointment_rejected"
	NotificationRescheduled NotificationKind = "appointment_rescheduled"
)

// Notification is a message for a single recipient.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	AppointmentID int64            `json:"appointment_id"`
	Recipient     string           `json:"recipient"`
	Subject       string           `json:"subject"`
	Body          string           `json:"body"`
}
