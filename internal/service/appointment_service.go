package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/office-appointment-api/internal/dto"
	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/repository"
	"github.com/noah-isme/office-appointment-api/internal/scheduling"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
)

const anonymousCreator = "anonymous"

// Rejection reasons reported to metrics.
const (
	rejectValidation = "validation"
	rejectDeadline   = "deadline"
	rejectBreak      = "break_window"
	rejectDayBlocked = "day_blocked"
	rejectSlot       = "slot_blocked"
	rejectConflict   = "conflict"
)

type appointmentRepository interface {
	FindConflicting(ctx context.Context, date, start, end time.Time, excludeID *int64) ([]models.Appointment, error)
	FindByID(ctx context.Context, id int64) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	Create(ctx context.Context, appointment *models.Appointment) error
	Update(ctx context.Context, appointment *models.Appointment) error
	SoftDelete(ctx context.Context, id int64) error
	HardDelete(ctx context.Context, id int64) error
	LockDate(ctx context.Context, date time.Time) error
}

type unitLookup interface {
	FindByID(ctx context.Context, id int64) (*models.Unit, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type bookingGuard interface {
	EnsureBookable(ctx context.Context, date, start, end time.Time) error
}

// AppointmentService implements the booking lifecycle.
type AppointmentService struct {
	repo      appointmentRepository
	units     unitLookup
	users     userLookup
	guard     bookingGuard
	tx        transactor
	rules     *scheduling.Rules
	notifier  appointmentNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAppointmentService constructs the appointment service.
func NewAppointmentService(repo appointmentRepository, units unitLookup, users userLookup, guard bookingGuard, tx transactor, rules *scheduling.Rules, notifier appointmentNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	svc := &AppointmentService{
		repo:      repo,
		units:     units,
		users:     users,
		guard:     guard,
		tx:        tx,
		rules:     rules,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
	svc.validator.RegisterValidation("appointment_status", func(fl validator.FieldLevel) bool {
		return models.AppointmentStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// Create books a new appointment after every scheduling rule passes.
func (s *AppointmentService) Create(ctx context.Context, req dto.CreateAppointmentRequest, actor *models.JWTClaims) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(rejectValidation, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload"))
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "full_name is required"))
	}

	date, start, end, err := s.parseSchedule(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, s.reject(rejectValidation, err)
	}

	status := models.AppointmentStatusPending
	if req.Status != "" {
		status = models.AppointmentStatus(strings.ToLower(req.Status))
	}
	if status != models.AppointmentStatusPending && !actor.CanReview() {
		return nil, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "only staff can set the status of a new appointment"))
	}

	if err := s.ensureUnit(ctx, req.UnitID); err != nil {
		return nil, err
	}
	if req.UserID != nil {
		if err := s.ensureUser(ctx, *req.UserID); err != nil {
			return nil, err
		}
	}

	if err := s.checkPolicy(date, start, end); err != nil {
		return nil, err
	}

	appointment := &models.Appointment{
		FullName:        fullName,
		UserID:          req.UserID,
		UnitID:          req.UnitID,
		AppointmentDate: date,
		StartTime:       start,
		EndTime:         end,
		Status:          status,
		Agenda:          trimmedOrNil(req.Agenda),
		Email:           trimmedOrNil(req.Email),
		CreatedBy:       creatorIdentifier(actor, req.CreatedBy),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockDate(ctx, date); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock date")
		}
		if err := s.checkAvailability(ctx, date, start, end, nil, true); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, appointment); err != nil {
			return s.persistError(err, "failed to create appointment")
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	s.metrics.RecordAppointmentCreated()
	s.logger.Sugar().Infow("appointment created", "id", appointment.ID, "unit_id", appointment.UnitID,
		"date", date.Format(scheduling.DateLayout), "status", appointment.Status)
	return appointment, nil
}

// Update applies a partial change. Calendar rules run only when the date or a time changes.
// The conflict check runs whenever the schedule changes or the result is approved.
func (s *AppointmentService) Update(ctx context.Context, id int64, req dto.UpdateAppointmentRequest) (*models.Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.applyPatch(ctx, *current, req)
	if err != nil {
		return nil, err
	}

	touchesSchedule := req.TouchesSchedule()
	if touchesSchedule {
		if err := s.checkPolicy(updated.AppointmentDate, updated.StartTime, updated.EndTime); err != nil {
			return nil, err
		}
	}

	// A status-only move away from approved cannot create an overlap.
	needsAvailability := touchesSchedule || updated.Status == models.AppointmentStatusApproved
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockDate(ctx, updated.AppointmentDate); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock date")
		}
		if needsAvailability {
			if err := s.checkAvailability(ctx, updated.AppointmentDate, updated.StartTime, updated.EndTime, &updated.ID, touchesSchedule); err != nil {
				return err
			}
		}
		if err := s.repo.Update(ctx, &updated); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
			}
			return s.persistError(err, "failed to update appointment")
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	if updated.Status != current.Status {
		switch updated.Status {
		case models.AppointmentStatusApproved:
			s.notifier.Notify(ctx, models.NotificationApproved, updated, "")
		case models.AppointmentStatusRejected:
			s.notifier.Notify(ctx, models.NotificationRejected, updated, "")
		}
	}
	if rescheduled(*current, updated) {
		s.notifier.Notify(ctx, models.NotificationRescheduled, updated,
			fmt.Sprintf("It was previously scheduled on %s %s.", current.AppointmentDate.Format(scheduling.DateLayout), current.StartTime.Format(scheduling.ClockLayout)))
	}
	return &updated, nil
}

// Delete soft deletes an appointment.
func (s *AppointmentService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete appointment")
	}
	return nil
}

// HardDelete removes an appointment permanently.
func (s *AppointmentService) HardDelete(ctx context.Context, id int64) error {
	if err := s.repo.HardDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge appointment")
	}
	s.logger.Sugar().Infow("appointment purged", "id", id)
	return nil
}

// Get returns an appointment by id, including soft-deleted rows.
func (s *AppointmentService) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	appointment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appointment, nil
}

// List returns a page of appointments. Soft-deleted rows are only returned when IsDeleted is set.
func (s *AppointmentService) List(ctx context.Context, req dto.AppointmentListRequest) ([]models.Appointment, *models.Pagination, error) {
	filter, err := s.buildFilter(req)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *AppointmentService) buildFilter(req dto.AppointmentListRequest) (models.AppointmentFilter, error) {
	filter := models.AppointmentFilter{
		UnitID:    req.UnitID,
		UserID:    req.UserID,
		IsDeleted: req.IsDeleted,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if req.Status != "" {
		status := models.AppointmentStatus(strings.ToLower(req.Status))
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "status must be pending, approved or rejected")
		}
		filter.Status = &status
	}
	for _, item := range []struct {
		name string
		raw  string
		dest **time.Time
	}{{"date", req.Date, &filter.Date}, {"from", req.From, &filter.From}, {"to", req.To, &filter.To}} {
		if item.raw == "" {
			continue
		}
		parsed, err := s.rules.ParseDate(item.raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", item.name))
		}
		*item.dest = &parsed
	}
	return filter, nil
}

func (s *AppointmentService) applyPatch(ctx context.Context, current models.Appointment, req dto.UpdateAppointmentRequest) (models.Appointment, error) {
	updated := current
	for _, field := range []struct {
		name string
		null bool
	}{
		{"full_name", req.FullName.IsNull()},
		{"unit_id", req.UnitID.IsNull()},
		{"appointment_date", req.Date.IsNull()},
		{"start_time", req.StartTime.IsNull()},
		{"end_time", req.EndTime.IsNull()},
		{"status", req.Status.IsNull()},
	} {
		if field.null {
			return updated, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, field.name+" cannot be null"))
		}
	}

	if req.FullName.Set {
		name := strings.TrimSpace(*req.FullName.Value)
		if name == "" || len(name) > 150 {
			return updated, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "full_name must be 1-150 characters"))
		}
		updated.FullName = name
	}

	if req.Date.Set {
		date, err := s.rules.ParseDate(*req.Date.Value)
		if err != nil {
			return updated, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "appointment_date must be a date in YYYY-MM-DD format"))
		}
		updated.AppointmentDate = date
	}
	if req.StartTime.Set {
		start, err := s.rules.ParseDateTime(updated.AppointmentDate, *req.StartTime.Value)
		if err != nil {
			return updated, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM or RFC3339"))
		}
		updated.StartTime = start
	} else if req.Date.Set {
		updated.StartTime = s.rules.Project(updated.AppointmentDate, current.StartTime)
	}
	if req.EndTime.Set {
		end, err := s.rules.ParseDateTime(updated.AppointmentDate, *req.EndTime.Value)
		if err != nil {
			return updated, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM or RFC3339"))
		}
		updated.EndTime = end
	} else if req.Date.Set {
		updated.EndTime = s.rules.Project(updated.AppointmentDate, current.EndTime)
	}
	if err := s.validateRange(updated.AppointmentDate, updated.StartTime, updated.EndTime); err != nil {
		return updated, s.reject(rejectValidation, err)
	}

	if req.Status.Set {
		status := models.AppointmentStatus(strings.ToLower(*req.Status.Value))
		if !status.Valid() {
			return updated, s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "status must be pending, approved or rejected"))
		}
		updated.Status = status
	}

	if req.UnitID.Set {
		if err := s.ensureUnit(ctx, *req.UnitID.Value); err != nil {
			return updated, err
		}
		updated.UnitID = *req.UnitID.Value
	}
	if req.UserID.Set {
		if req.UserID.Value != nil {
			if err := s.ensureUser(ctx, *req.UserID.Value); err != nil {
				return updated, err
			}
		}
		updated.UserID = req.UserID.Value
	}

	if req.Agenda.Set {
		updated.Agenda = trimmedOrNil(req.Agenda.Value)
	}
	if req.Email.Set {
		if req.Email.Value != nil {
			if err := s.validator.Var(*req.Email.Value, "email"); err != nil {
				return updated, s.reject(rejectValidation, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "email is invalid"))
			}
		}
		updated.Email = trimmedOrNil(req.Email.Value)
	}
	return updated, nil
}

func (s *AppointmentService) parseSchedule(rawDate, rawStart, rawEnd string) (time.Time, time.Time, time.Time, error) {
	date, err := s.rules.ParseDate(rawDate)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "appointment_date must be a date in YYYY-MM-DD format")
	}
	start, err := s.rules.ParseDateTime(date, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM or RFC3339")
	}
	end, err := s.rules.ParseDateTime(date, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM or RFC3339")
	}
	if err := s.validateRange(date, start, end); err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	return date, start, end, nil
}

func (s *AppointmentService) validateRange(date, start, end time.Time) error {
	if !start.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	if !s.rules.SameDate(start, date) || !s.rules.SameDate(end, date) {
		return appErrors.Clone(appErrors.ErrValidation, "start_time and end_time must fall on appointment_date")
	}
	return nil
}

// checkPolicy runs the calendar rules that do not need storage.
func (s *AppointmentService) checkPolicy(date, start, end time.Time) error {
	if err := s.rules.ValidateSubmissionDeadline(date, s.rules.Now()); err != nil {
		return s.reject(rejectDeadline, err)
	}
	if s.rules.OverlapsBreakWindow(start, end) {
		breakStart, breakEnd := s.rules.BreakWindow(date)
		return s.reject(rejectBreak, appErrors.Clone(appErrors.ErrBreakWindowViolation,
			fmt.Sprintf("appointments cannot overlap the %s-%s break", breakStart.Format(scheduling.ClockLayout), breakEnd.Format(scheduling.ClockLayout))))
	}
	return nil
}

// checkAvailability runs the storage backed checks. It must run under the date lock.
func (s *AppointmentService) checkAvailability(ctx context.Context, date, start, end time.Time, excludeID *int64, checkBlocks bool) error {
	if checkBlocks {
		if err := s.guard.EnsureBookable(ctx, date, start, end); err != nil {
			switch {
			case errors.Is(err, appErrors.ErrDayBlocked):
				return s.reject(rejectDayBlocked, err)
			case errors.Is(err, appErrors.ErrSlotBlocked):
				return s.reject(rejectSlot, err)
			}
			return err
		}
	}
	conflicts, err := s.repo.FindConflicting(ctx, date, start, end, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
	}
	if len(conflicts) > 0 {
		return s.reject(rejectConflict, conflictError(conflicts[0]))
	}
	return nil
}

func (s *AppointmentService) ensureUnit(ctx context.Context, id int64) error {
	unit, err := s.units.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.reject(rejectValidation, appErrors.Clone(appErrors.ErrNotFound, "unit not found"))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if !unit.Active {
		return s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "unit is not accepting appointments"))
	}
	return nil
}

func (s *AppointmentService) ensureUser(ctx context.Context, id int64) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.reject(rejectValidation, appErrors.Clone(appErrors.ErrNotFound, "user not found"))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return s.reject(rejectValidation, appErrors.Clone(appErrors.ErrValidation, "user is inactive"))
	}
	return nil
}

func (s *AppointmentService) persistError(err error, message string) error {
	if repository.IsExclusionViolation(err) {
		return s.reject(rejectConflict, appErrors.Clone(appErrors.ErrSchedulingConflict, ""))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *AppointmentService) reject(reason string, err error) error {
	s.metrics.RecordAppointmentRejected(reason)
	return err
}

func conflictError(existing models.Appointment) error {
	cause := &models.AppointmentConflictError{Conflict: models.AppointmentConflict{
		AppointmentID: existing.ID,
		Date:          existing.AppointmentDate.Format(scheduling.DateLayout),
		StartTime:     existing.StartTime.Format(scheduling.ClockLayout),
		EndTime:       existing.EndTime.Format(scheduling.ClockLayout),
	}}
	err := appErrors.WithDetails(appErrors.Clone(appErrors.ErrSchedulingConflict, ""), cause.Conflict)
	err.Err = cause
	return err
}

func rescheduled(before, after models.Appointment) bool {
	return !before.AppointmentDate.Equal(after.AppointmentDate) ||
		!before.StartTime.Equal(after.StartTime) ||
		!before.EndTime.Equal(after.EndTime)
}

func creatorIdentifier(actor *models.JWTClaims, fallback string) string {
	if id := actor.Identifier(); id != "" {
		return id
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return trimmed
	}
	return anonymousCreator
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
