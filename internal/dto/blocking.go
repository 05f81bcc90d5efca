package dto

import (
	"github.com/noah-isme/office-appointment-api/internal/models"
)

// BlockDayRequest declares a busy day.
type BlockDayRequest struct {
	Date string `json:"date" validate:"required"`
}

// BlockSlotRequest declares a busy time range on a date.
type BlockSlotRequest struct {
	Date      string  `json:"date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

// SlotCheckRequest asks whether a range on a date is blocked.
type SlotCheckRequest struct {
	Date      string `form:"date" validate:"required"`
	StartTime string `form:"start" validate:"required"`
	EndTime   string `form:"end" validate:"required"`
}

// BusyDayResponse renders a busy day.
type BusyDayResponse struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
}

// NewBusyDayResponse converts a busy day.
func NewBusyDayResponse(d models.BusyDay) BusyDayResponse {
	return BusyDayResponse{ID: d.ID, Date: d.Date.Format("2006-01-02")}
}

// BusyDayStatus answers IsDayBlocked.
type BusyDayStatus struct {
	Date    string `json:"date"`
	Blocked bool   `json:"blocked"`
}

// BusySlotResponse renders a busy time slot.
type BusySlotResponse struct {
	ID        int64   `json:"id"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Reason    *string `json:"reason,omitempty"`
}

// NewBusySlotResponse converts a busy time slot.
func NewBusySlotResponse(s models.BusyTimeSlot) BusySlotResponse {
	return BusySlotResponse{
		ID:        s.ID,
		Date:      s.Date.Format("2006-01-02"),
		StartTime: s.StartTime.Format("15:04"),
		EndTime:   s.EndTime.Format("15:04"),
		Reason:    s.Reason,
	}
}

// NewBusySlotResponses converts a slice of busy time slots.
func NewBusySlotResponses(items []models.BusyTimeSlot) []BusySlotResponse {
	out := make([]BusySlotResponse, len(items))
	for i, item := range items {
		out[i] = NewBusySlotResponse(item)
	}
	return out
}

// SlotStatus answers IsSlotBlocked.
type SlotStatus struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Blocked   bool   `json:"blocked"`
}

// MovedAppointment is an appointment relocated by a busy day.
type MovedAppointment struct {
	AppointmentID int64                    `json:"appointment_id"`
	FullName      string                   `json:"full_name"`
	FromDate      string                   `json:"from_date"`
	ToDate        string                   `json:"to_date"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Status        models.AppointmentStatus `json:"status"`
}

// FailedAppointment is an appointment that could not be relocated.
type FailedAppointment struct {
	AppointmentID int64                    `json:"appointment_id"`
	FullName      string                   `json:"full_name"`
	Date          string                   `json:"date"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Status        models.AppointmentStatus `json:"status"`
	Reason        string                   `json:"reason"`
}

// BlockDayResult summarises a busy-day cascade.
type BlockDayResult struct {
	BusyDay     BusyDayResponse     `json:"busy_day"`
	Moved       []MovedAppointment  `json:"moved"`
	Failed      []FailedAppointment `json:"failed"`
	MovedCount  int                 `json:"moved_count"`
	FailedCount int                 `json:"failed_count"`
}

// NewBlockDayResult partitions cascade outcomes into moved and failed lists.
func NewBlockDayResult(day models.BusyDay, outcomes []models.RescheduleOutcome) BlockDayResult {
	result := BlockDayResult{
		BusyDay: NewBusyDayResponse(day),
		Moved:   []MovedAppointment{},
		Failed:  []FailedAppointment{},
	}
	for _, o := range outcomes {
		a := o.Appointment
		if o.Moved() {
			result.Moved = append(result.Moved, MovedAppointment{
				AppointmentID: a.ID,
				FullName:      a.FullName,
				FromDate:      o.FromDate.Format("2006-01-02"),
				ToDate:        o.ToDate.Format("2006-01-02"),
				StartTime:     a.StartTime.Format("15:04"),
				EndTime:       a.EndTime.Format("15:04"),
				Status:        a.Status,
			})
			continue
		}
		result.Failed = append(result.Failed, FailedAppointment{
			AppointmentID: a.ID,
			FullName:      a.FullName,
			Date:          o.FromDate.Format("2006-01-02"),
			StartTime:     a.StartTime.Format("15:04"),
			EndTime:       a.EndTime.Format("15:04"),
			Status:        a.Status,
			Reason:        o.Reason,
		})
	}
	result.MovedCount = len(result.Moved)
	result.FailedCount = len(result.Failed)
	return result
}
