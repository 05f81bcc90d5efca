package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/api/v1/appointments", 200, 20*time.Millisecond)
	m.ObserveHTTPRequest("POST", "/api/v1/appointments", 201, 40*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordAppointmentCreated()
	m.RecordAppointmentRejected(rejectConflict)
	m.RecordAppointmentRejected(rejectBreak)
	m.RecordRescheduleOutcome(RescheduleMoved)
	m.RecordRescheduleOutcome(RescheduleRejected)
	m.RecordRescheduleOutcome(RescheduleError)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.AppointmentsCreated)
	assert.Equal(t, uint64(2), snap.AppointmentsRejected)
	assert.Equal(t, uint64(1), snap.AppointmentsMoved)
	assert.Equal(t, uint64(1), snap.AppointmentsAutoRejected)

	families, err := m.Registry().Gather()
	assert.NoError(t, err)
	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["appointments_rejected_total"])
	assert.True(t, names["reschedule_outcomes_total"])
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.RecordAppointmentCreated()
		m.RecordRescheduleOutcome(RescheduleMoved)
	})
	assert.Zero(t, m.Snapshot().RequestsTotal)
	assert.NotNil(t, m.Handler())
}
