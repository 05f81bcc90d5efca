package dto

import (
	"time"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

// CreateAppointmentRequest is the booking payload. Times accept "HH:MM" or RFC3339.
type CreateAppointmentRequest struct {
	FullName  string  `json:"full_name" validate:"required,max=150"`
	UserID    *int64  `json:"user_id" validate:"omitempty,gt=0"`
	UnitID    int64   `json:"unit_id" validate:"required,gt=0"`
	Date      string  `json:"appointment_date" validate:"required"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Status    string  `json:"status" validate:"omitempty,appointment_status"`
	Agenda    *string `json:"agenda" validate:"omitempty,max=2000"`
	Email     *string `json:"email" validate:"omitempty,email"`
	CreatedBy string  `json:"created_by" validate:"max=150"`
}

// UpdateAppointmentRequest is a partial update. Absent keys keep stored values; null clears nullable columns.
type UpdateAppointmentRequest struct {
	FullName  Optional[string] `json:"full_name"`
	UserID    Optional[int64]  `json:"user_id"`
	UnitID    Optional[int64]  `json:"unit_id"`
	Date      Optional[string] `json:"appointment_date"`
	StartTime Optional[string] `json:"start_time"`
	EndTime   Optional[string] `json:"end_time"`
	Status    Optional[string] `json:"status"`
	Agenda    Optional[string] `json:"agenda"`
	Email     Optional[string] `json:"email"`
}

// TouchesSchedule reports whether the patch changes the date or either time.
func (r UpdateAppointmentRequest) TouchesSchedule() bool {
	return r.Date.Set || r.StartTime.Set || r.EndTime.Set
}

// AppointmentListRequest carries list filters as received from the transport.
type AppointmentListRequest struct {
	Status    string
	Date      string
	From      string
	To        string
	UnitID    *int64
	UserID    *int64
	IsDeleted bool
	Page      int
	PageSize  int
}

// AppointmentExportRequest selects appointments for an agenda export.
type AppointmentExportRequest struct {
	AppointmentListRequest
	Format string
}

// AppointmentResponse renders an appointment with wire-format dates and times.
type AppointmentResponse struct {
	ID        int64                    `json:"id"`
	FullName  string                   `json:"full_name"`
	UserID    *int64                   `json:"user_id,omitempty"`
	UnitID    int64                    `json:"unit_id"`
	Date      string                   `json:"appointment_date"`
	StartTime string                   `json:"start_time"`
	EndTime   string                   `json:"end_time"`
	Status    models.AppointmentStatus `json:"status"`
	Agenda    *string                  `json:"agenda,omitempty"`
	Email     *string                  `json:"email,omitempty"`
	CreatedBy string                   `json:"created_by"`
	IsDeleted bool                     `json:"is_deleted"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// NewAppointmentResponse converts a model into its response form.
func NewAppointmentResponse(a models.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		FullName:  a.FullName,
		UserID:    a.UserID,
		UnitID:    a.UnitID,
		Date:      a.AppointmentDate.Format("2006-01-02"),
		StartTime: a.StartTime.Format("15:04"),
		EndTime:   a.EndTime.Format("15:04"),
		Status:    a.Status,
		Agenda:    a.Agenda,
		Email:     a.Email,
		CreatedBy: a.CreatedBy,
		IsDeleted: a.IsDeleted,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// NewAppointmentResponses converts a slice of models.
func NewAppointmentResponses(items []models.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(items))
	for i, item := range items {
		out[i] = NewAppointmentResponse(item)
	}
	return out
}
