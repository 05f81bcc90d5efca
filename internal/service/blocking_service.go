package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/office-appointment-api/internal/dto"
	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/scheduling"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
)

// BusyDayCachePattern matches every cached busy-day lookup.
const BusyDayCachePattern = busyDayCachePrefix + "*"

const (
	busyDayCachePrefix    = "busy_day:"
	defaultHorizonDays    = 60
	maxBusyListRangeDays  = 366
	defaultBusyListWindow = 30
)

type busyDayRepository interface {
	Exists(ctx context.Context, date time.Time) (bool, error)
	Upsert(ctx context.Context, date time.Time) (*models.BusyDay, error)
	DeleteByDate(ctx context.Context, date time.Time) (*models.BusyDay, error)
	ListRange(ctx context.Context, from, to time.Time) ([]models.BusyDay, error)
}

type busySlotRepository interface {
	ListByDate(ctx context.Context, date time.Time) ([]models.BusyTimeSlot, error)
	ListRange(ctx context.Context, from, to time.Time) ([]models.BusyTimeSlot, error)
	Create(ctx context.Context, slot *models.BusyTimeSlot) error
	Delete(ctx context.Context, id int64) error
}

type rescheduleRepository interface {
	FindConflicting(ctx context.Context, date, start, end time.Time, excludeID *int64) ([]models.Appointment, error)
	ListByDateAndStatuses(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error)
	Update(ctx context.Context, appointment *models.Appointment) error
	LockDate(ctx context.Context, date time.Time) error
}

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type busyDayCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// BlockingServiceConfig tunes the busy-day cascade.
type BlockingServiceConfig struct {
	HorizonDays  int
	SkipWeekends bool
	CacheTTL     time.Duration
}

// BlockingService manages busy days and busy time slots, and relocates appointments displaced by a busy day.
type BlockingService struct {
	days         busyDayRepository
	slots        busySlotRepository
	appointments rescheduleRepository
	tx           transactor
	cache        busyDayCache
	rules        *scheduling.Rules
	notifier     appointmentNotifier
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	cfg          BlockingServiceConfig
}

// NewBlockingService constructs a BlockingService. cache, notifier and metrics are optional.
func NewBlockingService(days busyDayRepository, slots busySlotRepository, appointments rescheduleRepository, tx transactor, cache busyDayCache, rules *scheduling.Rules, notifier appointmentNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg BlockingServiceConfig) *BlockingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cfg.HorizonDays < 0 {
		cfg.HorizonDays = defaultHorizonDays
	}
	return &BlockingService{
		days:         days,
		slots:        slots,
		appointments: appointments,
		tx:           tx,
		cache:        cache,
		rules:        rules,
		notifier:     notifier,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		cfg:          cfg,
	}
}

func busyDayKey(date time.Time) string {
	return busyDayCachePrefix + date.Format(scheduling.DateLayout)
}

// IsDayBlocked reports whether date is a busy day. Lookups are served from cache when enabled.
func (s *BlockingService) IsDayBlocked(ctx context.Context, date time.Time) (bool, error) {
	day := s.rules.DateOf(date)
	key := busyDayKey(day)
	if s.cache != nil {
		var cached bool
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}
	blocked, err := s.days.Exists(ctx, day)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check busy day")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, blocked, s.cfg.CacheTTL)
	}
	return blocked, nil
}

// IsSlotBlocked reports whether [start, end) overlaps any busy slot on date.
func (s *BlockingService) IsSlotBlocked(ctx context.Context, date, start, end time.Time) (bool, error) {
	slot, err := s.overlappingSlot(ctx, date, start, end)
	if err != nil {
		return false, err
	}
	return slot != nil, nil
}

func (s *BlockingService) overlappingSlot(ctx context.Context, date, start, end time.Time) (*models.BusyTimeSlot, error) {
	slots, err := s.slots.ListByDate(ctx, s.rules.DateOf(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load busy slots")
	}
	for i := range slots {
		if scheduling.Overlaps(start, end, slots[i].StartTime, slots[i].EndTime) {
			return &slots[i], nil
		}
	}
	return nil, nil
}

// EnsureBookable returns DayBlocked or SlotBlocked when the range is unavailable.
// It reads storage directly so it is safe inside a transaction holding the date lock.
func (s *BlockingService) EnsureBookable(ctx context.Context, date, start, end time.Time) error {
	day := s.rules.DateOf(date)
	blocked, err := s.days.Exists(ctx, day)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check busy day")
	}
	if blocked {
		return appErrors.Clone(appErrors.ErrDayBlocked, fmt.Sprintf("%s is not available for appointments", day.Format(scheduling.DateLayout)))
	}
	slot, err := s.overlappingSlot(ctx, day, start, end)
	if err != nil {
		return err
	}
	if slot != nil {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrSlotBlocked, fmt.Sprintf("the office is unavailable from %s to %s",
				slot.StartTime.Format(scheduling.ClockLayout), slot.EndTime.Format(scheduling.ClockLayout))),
			dto.NewBusySlotResponse(*slot))
	}
	return nil
}

// CheckDay answers whether a wire-format date is blocked.
func (s *BlockingService) CheckDay(ctx context.Context, rawDate string) (*dto.BusyDayStatus, error) {
	day, err := s.parseDate("date", rawDate)
	if err != nil {
		return nil, err
	}
	blocked, err := s.IsDayBlocked(ctx, day)
	if err != nil {
		return nil, err
	}
	return &dto.BusyDayStatus{Date: day.Format(scheduling.DateLayout), Blocked: blocked}, nil
}

// CheckSlot answers whether a wire-format range is blocked.
func (s *BlockingService) CheckSlot(ctx context.Context, req dto.SlotCheckRequest) (*dto.SlotStatus, error) {
	day, start, end, err := s.parseRange(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	blocked, err := s.IsSlotBlocked(ctx, day, start, end)
	if err != nil {
		return nil, err
	}
	return &dto.SlotStatus{
		Date:      day.Format(scheduling.DateLayout),
		StartTime: start.Format(scheduling.ClockLayout),
		EndTime:   end.Format(scheduling.ClockLayout),
		Blocked:   blocked,
	}, nil
}

// BlockDay marks a date busy and relocates its pending and approved appointments.
func (s *BlockingService) BlockDay(ctx context.Context, req dto.BlockDayRequest) (*dto.BlockDayResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid busy day payload")
	}
	day, err := s.parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}

	busyDay, outcomes, err := s.blockDate(ctx, day)
	if err != nil {
		return nil, err
	}
	result := dto.NewBlockDayResult(*busyDay, outcomes)
	s.logger.Sugar().Infow("busy day declared",
		"date", day.Format(scheduling.DateLayout), "moved", result.MovedCount, "failed", result.FailedCount)
	return &result, nil
}

func (s *BlockingService) blockDate(ctx context.Context, day time.Time) (*models.BusyDay, []models.RescheduleOutcome, error) {
	var busyDay *models.BusyDay
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.LockDate(ctx, day); err != nil {
			return err
		}
		var err error
		busyDay, err = s.days.Upsert(ctx, day)
		return err
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record busy day")
	}
	s.invalidateDay(ctx, day)

	affected, err := s.appointments.ListByDateAndStatuses(ctx, day,
		[]models.AppointmentStatus{models.AppointmentStatusApproved, models.AppointmentStatusPending})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load affected appointments")
	}

	outcomes := make([]models.RescheduleOutcome, 0, len(affected))
	for _, appointment := range affected {
		outcomes = append(outcomes, s.relocate(ctx, day, appointment))
	}
	// A concurrent lookup may have cached the day as free between the upsert and the first invalidation.
	s.invalidateDay(ctx, day)
	return busyDay, outcomes, nil
}

var errTargetTaken = errors.New("target date no longer available")

// relocate moves one appointment to the next free date, or rejects it. It never returns an error:
// failures are recorded on the outcome.
func (s *BlockingService) relocate(ctx context.Context, day time.Time, appointment models.Appointment) models.RescheduleOutcome {
	outcome := models.RescheduleOutcome{Appointment: appointment, FromDate: day}

	target, err := s.FindNextAvailableDate(ctx, day, appointment.StartTime, appointment.EndTime, s.cfg.HorizonDays, &appointment.ID)
	if err != nil {
		return s.failOutcome(outcome, err)
	}

	reason := fmt.Sprintf("no available date within %d days", s.cfg.HorizonDays)
	if target != nil {
		moved := appointment
		moved.AppointmentDate = *target
		moved.StartTime = s.rules.Project(*target, appointment.StartTime)
		moved.EndTime = s.rules.Project(*target, appointment.EndTime)

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.appointments.LockDate(ctx, *target); err != nil {
				return err
			}
			blocked, err := s.days.Exists(ctx, *target)
			if err != nil {
				return err
			}
			if blocked {
				return errTargetTaken
			}
			conflicts, err := s.appointments.FindConflicting(ctx, *target, moved.StartTime, moved.EndTime, &appointment.ID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return errTargetTaken
			}
			return s.appointments.Update(ctx, &moved)
		})
		switch {
		case err == nil:
			outcome.Appointment = moved
			outcome.ToDate = target
			s.metrics.RecordRescheduleOutcome(RescheduleMoved)
			s.notifier.Notify(ctx, models.NotificationRescheduled, moved,
				fmt.Sprintf("It was originally scheduled on %s.", day.Format(scheduling.DateLayout)))
			return outcome
		case !errors.Is(err, errTargetTaken):
			return s.failOutcome(outcome, err)
		}
		s.logger.Sugar().Infow("reschedule target taken, rejecting", "appointment_id", appointment.ID, "target", target.Format(scheduling.DateLayout))
		reason = fmt.Sprintf("%s became unavailable before the move", target.Format(scheduling.DateLayout))
	}

	rejected := appointment
	rejected.Status = models.AppointmentStatusRejected
	if err := s.appointments.Update(ctx, &rejected); err != nil {
		return s.failOutcome(outcome, err)
	}
	outcome.Appointment = rejected
	outcome.Reason = reason
	s.metrics.RecordRescheduleOutcome(RescheduleRejected)
	s.notifier.Notify(ctx, models.NotificationRejected, rejected,
		fmt.Sprintf("The office is closed on %s and no alternative date was available.", day.Format(scheduling.DateLayout)))
	return outcome
}

func (s *BlockingService) failOutcome(outcome models.RescheduleOutcome, err error) models.RescheduleOutcome {
	outcome.Err = err
	outcome.Reason = err.Error()
	s.metrics.RecordRescheduleOutcome(RescheduleError)
	s.logger.Sugar().Warnw("reschedule failed", "appointment_id", outcome.Appointment.ID, "error", err)
	return outcome
}

// FindNextAvailableDate scans fromDate through fromDate+horizonDays inclusive and returns the first date
// that is not blocked and where the projected range has no approved conflict. It returns nil when none is free.
func (s *BlockingService) FindNextAvailableDate(ctx context.Context, fromDate, desiredStart, desiredEnd time.Time, horizonDays int, excludeID *int64) (*time.Time, error) {
	from := s.rules.DateOf(fromDate)
	for offset := 0; offset <= horizonDays; offset++ {
		candidate := from.AddDate(0, 0, offset)
		if s.cfg.SkipWeekends && !s.rules.IsEligibleWeekday(candidate) {
			continue
		}
		blocked, err := s.IsDayBlocked(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}
		start := s.rules.Project(candidate, desiredStart)
		end := s.rules.Project(candidate, desiredEnd)
		conflicts, err := s.appointments.FindConflicting(ctx, candidate, start, end, excludeID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
		}
		if len(conflicts) == 0 {
			return &candidate, nil
		}
	}
	return nil, nil
}

// UnblockDay removes a busy day. Appointments moved by the cascade stay where they are.
// It returns nil without error when the date was not blocked.
func (s *BlockingService) UnblockDay(ctx context.Context, rawDate string) (*models.BusyDay, error) {
	day, err := s.parseDate("date", rawDate)
	if err != nil {
		return nil, err
	}
	removed, err := s.days.DeleteByDate(ctx, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove busy day")
	}
	s.invalidateDay(ctx, day)
	return removed, nil
}

// BlockSlot declares a busy range on a date. Overlapping an existing slot is refused.
func (s *BlockingService) BlockSlot(ctx context.Context, req dto.BlockSlotRequest) (*models.BusyTimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid busy slot payload")
	}
	day, start, end, err := s.parseRange(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	slot := &models.BusyTimeSlot{Date: day, StartTime: start, EndTime: end, Reason: req.Reason}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.LockDate(ctx, day); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock date")
		}
		existing, err := s.overlappingSlot(ctx, day, start, end)
		if err != nil {
			return err
		}
		if existing != nil {
			return appErrors.WithDetails(appErrors.Clone(appErrors.ErrAlreadyBlocked, ""), dto.NewBusySlotResponse(*existing))
		}
		if err := s.slots.Create(ctx, slot); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create busy slot")
		}
		return nil
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return slot, nil
}

// UnblockSlot removes a busy slot. Unknown identifiers are ignored.
func (s *BlockingService) UnblockSlot(ctx context.Context, id int64) error {
	if err := s.slots.Delete(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove busy slot")
	}
	return nil
}

// ListBusyDays returns busy days in [from, to]. Blank bounds default to the next thirty days.
func (s *BlockingService) ListBusyDays(ctx context.Context, rawFrom, rawTo string) ([]models.BusyDay, error) {
	from, to, err := s.parseWindow(rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	days, err := s.days.ListRange(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list busy days")
	}
	return days, nil
}

// ListSlotsForDate returns the busy slots of one date.
func (s *BlockingService) ListSlotsForDate(ctx context.Context, rawDate string) ([]models.BusyTimeSlot, error) {
	day, err := s.parseDate("date", rawDate)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByDate(ctx, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list busy slots")
	}
	return slots, nil
}

// ListSlots returns busy slots in [from, to].
func (s *BlockingService) ListSlots(ctx context.Context, rawFrom, rawTo string) ([]models.BusyTimeSlot, error) {
	from, to, err := s.parseWindow(rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots.ListRange(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list busy slots")
	}
	return slots, nil
}

func (s *BlockingService) invalidateDay(ctx context.Context, day time.Time) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, busyDayKey(day))
}

func (s *BlockingService) parseDate(field, raw string) (time.Time, error) {
	day, err := s.rules.ParseDate(raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field))
	}
	return day, nil
}

func (s *BlockingService) parseRange(rawDate, rawStart, rawEnd string) (time.Time, time.Time, time.Time, error) {
	day, err := s.parseDate("date", rawDate)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, err
	}
	start, err := s.rules.ParseDateTime(day, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM or RFC3339")
	}
	end, err := s.rules.ParseDateTime(day, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM or RFC3339")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	if !s.rules.SameDate(start, day) || !s.rules.SameDate(end, day) {
		return time.Time{}, time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_time and end_time must fall on date")
	}
	return day, start, end, nil
}

func (s *BlockingService) parseWindow(rawFrom, rawTo string) (time.Time, time.Time, error) {
	from := s.rules.Today()
	if rawFrom != "" {
		parsed, err := s.parseDate("from", rawFrom)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	to := from.AddDate(0, 0, defaultBusyListWindow)
	if rawTo != "" {
		parsed, err := s.parseDate("to", rawTo)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if to.Sub(from) > maxBusyListRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("range must not exceed %d days", maxBusyListRangeDays))
	}
	return from, to, nil
}
