package models

import "time"

// BusyDay blocks a whole calendar date. At most one row exists per date.
type BusyDay struct {
	ID        int64     `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BusyTimeSlot blocks a sub-day range on a date.
type BusyTimeSlot struct {
	ID        int64     `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RescheduleOutcome records what happened to one appointment displaced by a busy day.
type RescheduleOutcome struct {
	Appointment Appointment `json:"appointment"`
	FromDate    time.Time   `json:"from_date"`
	ToDate      *time.Time  `json:"to_date,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Err         error       `json:"-"`
}

// Moved reports whether the appointment found a new date.
func (o RescheduleOutcome) Moved() bool {
	return o.Err == nil && o.ToDate != nil
}
