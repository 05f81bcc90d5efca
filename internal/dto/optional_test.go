package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

func TestUpdateAppointmentRequestPartialSemantics(t *testing.T) {
	var req UpdateAppointmentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"status":"approved","agenda":null}`), &req))

	assert.True(t, req.Status.Set)
	require.NotNil(t, req.Status.Value)
	assert.Equal(t, "approved", *req.Status.Value)
	assert.True(t, req.Agenda.IsNull())
	assert.False(t, req.Email.Set)
	assert.False(t, req.TouchesSchedule())
}

func TestUpdateAppointmentRequestTouchesSchedule(t *testing.T) {
	var req UpdateAppointmentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"start_time":"10:00"}`), &req))
	assert.True(t, req.TouchesSchedule())
}

func TestOptionalRejectsWrongType(t *testing.T) {
	var req UpdateAppointmentRequest
	assert.Error(t, json.Unmarshal([]byte(`{"unit_id":"seven"}`), &req))
}

func TestNewBlockDayResultPartitions(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, loc)
	next := day.AddDate(0, 0, 1)
	outcomes := []models.RescheduleOutcome{
		{Appointment: models.Appointment{ID: 1, StartTime: next.Add(9 * time.Hour), EndTime: next.Add(10 * time.Hour)}, FromDate: day, ToDate: &next},
		{Appointment: models.Appointment{ID: 2, Status: models.AppointmentStatusRejected}, FromDate: day, Reason: "no free date"},
	}
	result := NewBlockDayResult(models.BusyDay{ID: 9, Date: day}, outcomes)

	assert.Equal(t, "2024-05-06", result.BusyDay.Date)
	require.Len(t, result.Moved, 1)
	assert.Equal(t, "2024-05-07", result.Moved[0].ToDate)
	assert.Equal(t, "09:00", result.Moved[0].StartTime)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "no free date", result.Failed[0].Reason)
	assert.Equal(t, 1, result.MovedCount)
	assert.Equal(t, 1, result.FailedCount)
}
