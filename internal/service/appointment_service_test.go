package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-appointment-api/internal/dto"
	"github.com/noah-isme/office-appointment-api/internal/models"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
)

func createRequest(date, start, end string) dto.CreateAppointmentRequest {
	return dto.CreateAppointmentRequest{FullName: "Ayu Lestari", UnitID: 1, Date: date, StartTime: start, EndTime: end}
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func TestCreateAppointmentPersistsPending(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))

	created, err := f.appointments.Create(context.Background(), createRequest("2024-05-07", "09:00", "10:00"), nil)
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, models.AppointmentStatusPending, created.Status)
	assert.Equal(t, "anonymous", created.CreatedBy)
	assert.Equal(t, day(7), created.AppointmentDate)
	assert.Equal(t, at(7, 9, 0), created.StartTime)
	assert.Equal(t, []string{"2024-05-07"}, f.store.locked)
	assert.Equal(t, 1, f.tx.calls)
}

func TestCreateAppointmentValidation(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))
	cases := map[string]dto.CreateAppointmentRequest{
		"missing name":     {UnitID: 1, Date: "2024-05-07", StartTime: "09:00", EndTime: "10:00"},
		"blank name":       {FullName: "   ", UnitID: 1, Date: "2024-05-07", StartTime: "09:00", EndTime: "10:00"},
		"missing unit":     {FullName: "A", Date: "2024-05-07", StartTime: "09:00", EndTime: "10:00"},
		"bad date":         createRequest("07/05/2024", "09:00", "10:00"),
		"bad time":         createRequest("2024-05-07", "nine", "10:00"),
		"end before start": createRequest("2024-05-07", "10:00", "09:00"),
		"empty range":      createRequest("2024-05-07", "10:00", "10:00"),
		"crosses date":     createRequest("2024-05-07", "09:00", "2024-05-08T03:00:00+07:00"),
		"bad status":       {FullName: "A", UnitID: 1, Date: "2024-05-07", StartTime: "09:00", EndTime: "10:00", Status: "cancelled"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.appointments.Create(context.Background(), req, nil)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
		})
	}
	assert.Empty(t, f.store.items)
}

func TestCreateAppointmentSubmissionDeadline(t *testing.T) {
	t.Run("same day after cutoff", func(t *testing.T) {
		f := newSchedulingFixture(t, at(6, 14, 30))
		_, err := f.appointments.Create(context.Background(), createRequest("2024-05-06", "15:00", "16:00"), nil)
		assert.Equal(t, appErrors.ErrDeadlineViolation.Code, errorCode(err))
	})
	t.Run("same day before cutoff", func(t *testing.T) {
		f := newSchedulingFixture(t, at(6, 13, 0))
		_, err := f.appointments.Create(context.Background(), createRequest("2024-05-06", "15:00", "16:00"), nil)
		assert.NoError(t, err)
	})
	t.Run("tomorrow booked at 23:00", func(t *testing.T) {
		f := newSchedulingFixture(t, at(6, 23, 0))
		_, err := f.appointments.Create(context.Background(), createRequest("2024-05-07", "09:00", "10:00"), nil)
		assert.NoError(t, err)
	})
	t.Run("weekend", func(t *testing.T) {
		f := newSchedulingFixture(t, at(6, 8, 0))
		for _, date := range []string{"2024-05-11", "2024-05-12"} {
			_, err := f.appointments.Create(context.Background(), createRequest(date, "09:00", "10:00"), nil)
			assert.Equal(t, appErrors.ErrDeadlineViolation.Code, errorCode(err), date)
		}
	})
}

func TestCreateAppointmentBreakWindow(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))
	cases := []struct {
		start, end string
		wantErr    bool
	}{
		{"11:30", "12:30", true},
		{"12:00", "13:00", true},
		{"12:30", "14:00", true},
		{"13:00", "14:00", false},
		{"11:00", "12:00", false},
	}
	for _, tc := range cases {
		_, err := f.appointments.Create(context.Background(), createRequest("2024-05-08", tc.start, tc.end), nil)
		if tc.wantErr {
			assert.Equal(t, appErrors.ErrBreakWindowViolation.Code, errorCode(err), "%s-%s", tc.start, tc.end)
		} else {
			assert.NoError(t, err, "%s-%s", tc.start, tc.end)
		}
	}
}

func TestCreateAppointmentBlockedTime(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))
	_, _ = f.days.Upsert(context.Background(), day(8))
	f.slots.slots = []models.BusyTimeSlot{{ID: 1, Date: day(9), StartTime: at(9, 9, 0), EndTime: at(9, 10, 0)}}

	_, err := f.appointments.Create(context.Background(), createRequest("2024-05-08", "09:00", "10:00"), nil)
	assert.Equal(t, appErrors.ErrDayBlocked.Code, errorCode(err))

	_, err = f.appointments.Create(context.Background(), createRequest("2024-05-09", "09:30", "10:30"), nil)
	assert.Equal(t, appErrors.ErrSlotBlocked.Code, errorCode(err))

	_, err = f.appointments.Create(context.Background(), createRequest("2024-05-09", "10:00", "11:00"), nil)
	assert.NoError(t, err, "touching a busy slot is allowed")
}

func TestCreateAppointmentConflicts(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0),
		appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved),
		appointmentAt(2, 7, 13, 14, models.AppointmentStatusPending),
	)

	_, err := f.appointments.Create(context.Background(), createRequest("2024-05-07", "09:30", "10:30"), nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSchedulingConflict.Code, appErr.Code)
	conflict, ok := appErr.Details.(models.AppointmentConflict)
	require.True(t, ok)
	assert.Equal(t, int64(1), conflict.AppointmentID)
	assert.Equal(t, "09:00", conflict.StartTime)
	assert.Equal(t, "10:00", conflict.EndTime)

	_, err = f.appointments.Create(context.Background(), createRequest("2024-05-07", "13:00", "14:00"), nil)
	assert.NoError(t, err, "pending appointments never block")

	_, err = f.appointments.Create(context.Background(), createRequest("2024-05-07", "10:00", "11:00"), nil)
	assert.NoError(t, err, "touching an approved appointment is allowed")
}

func TestCreateAppointmentCollaborators(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))

	req := createRequest("2024-05-07", "09:00", "10:00")
	req.UnitID = 99
	_, err := f.appointments.Create(context.Background(), req, nil)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	req.UnitID = 2
	_, err = f.appointments.Create(context.Background(), req, nil)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	req.UnitID = 1
	inactive := int64(11)
	req.UserID = &inactive
	_, err = f.appointments.Create(context.Background(), req, nil)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestCreateAppointmentCreatorAndStatus(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))

	req := createRequest("2024-05-07", "09:00", "10:00")
	req.CreatedBy = "front-desk"
	req.Status = "APPROVED"
	agenda := "  permit renewal "
	req.Agenda = &agenda

	created, err := f.appointments.Create(context.Background(), req, &models.JWTClaims{Email: "staff@example.com", Role: models.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, "staff@example.com", created.CreatedBy)
	assert.Equal(t, models.AppointmentStatusApproved, created.Status)
	require.NotNil(t, created.Agenda)
	assert.Equal(t, "permit renewal", *created.Agenda)

	req.StartTime, req.EndTime = "14:00", "15:00"
	req.Status = ""
	created, err = f.appointments.Create(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "front-desk", created.CreatedBy)
	assert.Equal(t, models.AppointmentStatusPending, created.Status)
}

func TestCreateAppointmentStatusRequiresReviewer(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		status string
		actor  *models.JWTClaims
	}{
		{"anonymous approve", "approved", nil},
		{"citizen approve", "approved", &models.JWTClaims{Email: "citizen@example.com", Role: models.RoleCitizen}},
		{"anonymous reject", "rejected", nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest("2024-05-07", "09:00", "10:00")
			req.Status = tc.status
			_, err := f.appointments.Create(ctx, req, tc.actor)
			assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
		})
	}
	assert.Empty(t, f.store.items)

	req := createRequest("2024-05-07", "09:00", "10:00")
	req.Status = "pending"
	created, err := f.appointments.Create(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusPending, created.Status)

	req = createRequest("2024-05-07", "10:00", "11:00")
	req.Status = "approved"
	created, err = f.appointments.Create(ctx, req, &models.JWTClaims{Email: "admin@example.com", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusApproved, created.Status)
}

func TestUpdateStatusOnlySkipsCalendarRules(t *testing.T) {
	// Booked for this afternoon; approving after the cutoff must still work.
	f := newSchedulingFixture(t, at(6, 16, 0), appointmentAt(1, 6, 15, 16, models.AppointmentStatusPending))

	updated, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{Status: dto.Some("approved")})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusApproved, updated.Status)
	assert.Equal(t, []models.NotificationKind{models.NotificationApproved}, f.notifier.kinds())
}

func TestUpdateApprovalChecksConflicts(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0),
		appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved),
		appointmentAt(2, 7, 9, 10, models.AppointmentStatusPending),
	)

	_, err := f.appointments.Update(context.Background(), 2, dto.UpdateAppointmentRequest{Status: dto.Some("approved")})
	assert.Equal(t, appErrors.ErrSchedulingConflict.Code, errorCode(err))
	assert.Empty(t, f.notifier.events)

	updated, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{Agenda: dto.Some("updated agenda")})
	require.NoError(t, err, "an appointment never conflicts with itself")
	assert.Equal(t, "updated agenda", *updated.Agenda)
}

func TestUpdateRejectOverlappingPendingSkipsConflictCheck(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0),
		appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved),
		appointmentAt(2, 7, 9, 10, models.AppointmentStatusPending),
	)

	updated, err := f.appointments.Update(context.Background(), 2, dto.UpdateAppointmentRequest{Status: dto.Some("rejected")})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentStatusRejected, updated.Status)
	assert.Equal(t, []models.NotificationKind{models.NotificationRejected}, f.notifier.kinds())

	_, err = f.appointments.Update(context.Background(), 2, dto.UpdateAppointmentRequest{StartTime: dto.Some("09:30"), EndTime: dto.Some("10:30")})
	assert.Equal(t, appErrors.ErrSchedulingConflict.Code, errorCode(err), "a schedule change is still checked")
}

func TestConflictErrorMessageDoesNotRepeatCause(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0), appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved))

	_, err := f.appointments.Create(context.Background(), createRequest("2024-05-07", "09:30", "10:30"), nil)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSchedulingConflict.Message, appErr.Message)
	assert.Equal(t, 1, strings.Count(err.Error(), "09:00 to 10:00"))
	var cause *models.AppointmentConflictError
	require.True(t, errors.As(err, &cause))
	assert.Equal(t, int64(1), cause.Conflict.AppointmentID)
}

func TestUpdateRescheduleAndApproveNotifiesTwice(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0), appointmentAt(1, 7, 9, 10, models.AppointmentStatusPending))

	updated, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{
		Date:   dto.Some("2024-05-08"),
		Status: dto.Some("approved"),
	})
	require.NoError(t, err)
	assert.Equal(t, day(8), updated.AppointmentDate)
	assert.Equal(t, at(8, 9, 0), updated.StartTime, "stored times follow the new date")
	assert.Equal(t, at(8, 10, 0), updated.EndTime)
	assert.ElementsMatch(t, []models.NotificationKind{models.NotificationApproved, models.NotificationRescheduled}, f.notifier.kinds())
}

func TestUpdateTimeRunsCalendarRules(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0), appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved))

	_, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{EndTime: dto.Some("12:30")})
	assert.Equal(t, appErrors.ErrBreakWindowViolation.Code, errorCode(err))

	_, err = f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{Date: dto.Some("2024-05-11")})
	assert.Equal(t, appErrors.ErrDeadlineViolation.Code, errorCode(err))

	_, err = f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{StartTime: dto.Some("10:00")})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	updated, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{StartTime: dto.Some("08:30")})
	require.NoError(t, err)
	assert.Equal(t, at(7, 8, 30), updated.StartTime)
	assert.Equal(t, []models.NotificationKind{models.NotificationRescheduled}, f.notifier.kinds())
}

func TestUpdatePartialSemantics(t *testing.T) {
	agenda := "initial"
	existing := appointmentAt(1, 7, 9, 10, models.AppointmentStatusPending)
	existing.Agenda = &agenda
	f := newSchedulingFixture(t, at(6, 8, 0), existing)

	_, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{FullName: dto.Null[string]()})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{Email: dto.Some("not-an-email")})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	updated, err := f.appointments.Update(context.Background(), 1, dto.UpdateAppointmentRequest{Agenda: dto.Null[string]()})
	require.NoError(t, err)
	assert.Nil(t, updated.Agenda)
	assert.Equal(t, "Citizen", updated.FullName)
	assert.Empty(t, f.notifier.events)
}

func TestUpdateMissingAppointment(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0))
	_, err := f.appointments.Update(context.Background(), 404, dto.UpdateAppointmentRequest{Status: dto.Some("approved")})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}

func TestDeleteAndPurge(t *testing.T) {
	f := newSchedulingFixture(t, at(6, 8, 0), appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved))
	ctx := context.Background()

	require.NoError(t, f.appointments.Delete(ctx, 1))
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(f.appointments.Delete(ctx, 1)))

	got, err := f.appointments.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	_, err = f.appointments.Create(ctx, createRequest("2024-05-07", "09:00", "10:00"), nil)
	assert.NoError(t, err, "soft-deleted appointments release their slot")

	require.NoError(t, f.appointments.HardDelete(ctx, 1))
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(f.appointments.HardDelete(ctx, 1)))
	_, err = f.appointments.Get(ctx, 1)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}

func TestListAppointments(t *testing.T) {
	deleted := appointmentAt(3, 7, 13, 14, models.AppointmentStatusPending)
	deleted.IsDeleted = true
	f := newSchedulingFixture(t, at(6, 8, 0),
		appointmentAt(1, 7, 9, 10, models.AppointmentStatusApproved),
		appointmentAt(2, 8, 9, 10, models.AppointmentStatusPending),
		deleted,
	)

	items, pagination, err := f.appointments.List(context.Background(), dto.AppointmentListRequest{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)

	items, _, err = f.appointments.List(context.Background(), dto.AppointmentListRequest{IsDeleted: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(3), items[0].ID)

	items, _, err = f.appointments.List(context.Background(), dto.AppointmentListRequest{Status: "Approved", Date: "2024-05-07"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)

	_, _, err = f.appointments.List(context.Background(), dto.AppointmentListRequest{Status: "done"})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
	_, _, err = f.appointments.List(context.Background(), dto.AppointmentListRequest{Date: "tomorrow"})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}
