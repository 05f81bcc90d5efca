package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/scheduling"
	"github.com/noah-isme/office-appointment-api/pkg/jobs"
)

// NotificationJobType identifies notification jobs on the dispatcher queue.
const NotificationJobType = "notification"

// NotificationSender delivers a message to one recipient.
type NotificationSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender writes notifications to the application log. It is the default sender.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements NotificationSender.
func (s *LogSender) Send(_ context.Context, recipient, subject, body string) error {
	s.logger.Info("notification", zap.String("recipient", recipient), zap.String("subject", subject), zap.String("body", body))
	return nil
}

type notificationUserLookup interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type notificationDispatcher interface {
	Enqueue(job jobs.Job) error
}

// appointmentNotifier is the collaborator the scheduling services emit events through.
type appointmentNotifier interface {
	Notify(ctx context.Context, kind models.NotificationKind, appointment models.Appointment, detail string)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.NotificationKind, models.Appointment, string) {}

// NotificationService turns appointment events into messages and hands them to a sender.
// Delivery failures never affect the scheduling operation that triggered them.
type NotificationService struct {
	sender     NotificationSender
	users      notificationUserLookup
	dispatcher notificationDispatcher
	logger     *zap.Logger
	enabled    bool
}

// NewNotificationService constructs a NotificationService. Without a dispatcher messages are sent inline.
func NewNotificationService(sender NotificationSender, users notificationUserLookup, logger *zap.Logger, enabled bool) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	return &NotificationService{sender: sender, users: users, logger: logger, enabled: enabled}
}

// UseDispatcher routes deliveries through an asynchronous queue.
func (s *NotificationService) UseDispatcher(d notificationDispatcher) {
	s.dispatcher = d
}

// Notify builds and dispatches a notification for the appointment holder.
func (s *NotificationService) Notify(ctx context.Context, kind models.NotificationKind, appointment models.Appointment, detail string) {
	if s == nil || !s.enabled {
		return
	}
	recipient := s.recipient(ctx, appointment)
	if recipient == "" {
		s.logger.Sugar().Infow("notification skipped: no recipient", "kind", kind, "appointment_id", appointment.ID)
		return
	}

	msg := buildNotification(kind, appointment, detail)
	msg.Recipient = recipient

	if s.dispatcher == nil {
		if err := s.deliver(ctx, msg); err != nil {
			s.logger.Sugar().Warnw("notification delivery failed", "kind", kind, "appointment_id", appointment.ID, "error", err)
		}
		return
	}
	if err := s.dispatcher.Enqueue(jobs.Job{Type: NotificationJobType, Payload: msg}); err != nil {
		s.logger.Sugar().Warnw("notification enqueue failed", "kind", kind, "appointment_id", appointment.ID, "error", err)
	}
}

// Handle is the queue handler for notification jobs.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Sugar().Errorw("unexpected notification payload", "job_id", job.ID, "type", fmt.Sprintf("%T", job.Payload))
		return nil
	}
	return s.deliver(ctx, msg)
}

func (s *NotificationService) deliver(ctx context.Context, msg models.Notification) error {
	if err := s.sender.Send(ctx, msg.Recipient, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("send %s for appointment %d: %w", msg.Kind, msg.AppointmentID, err)
	}
	return nil
}

func (s *NotificationService) recipient(ctx context.Context, appointment models.Appointment) string {
	if appointment.Email != nil && strings.TrimSpace(*appointment.Email) != "" {
		return strings.TrimSpace(*appointment.Email)
	}
	if appointment.UserID == nil || s.users == nil {
		return ""
	}
	user, err := s.users.FindByID(ctx, *appointment.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("notification recipient lookup failed", "user_id", *appointment.UserID, "error", err)
		}
		return ""
	}
	return user.Email
}

func buildNotification(kind models.NotificationKind, a models.Appointment, detail string) models.Notification {
	when := fmt.Sprintf("%s %s-%s", a.AppointmentDate.Format(scheduling.DateLayout),
		a.StartTime.Format(scheduling.ClockLayout), a.EndTime.Format(scheduling.ClockLayout))

	var subject, body string
	switch kind {
	case models.NotificationApproved:
		subject = "Your appointment has been approved"
		body = fmt.Sprintf("Dear %s, your appointment on %s has been approved.", a.FullName, when)
	case models.NotificationRejected:
		subject = "Your appointment has been rejected"
		body = fmt.Sprintf("Dear %s, your appointment on %s has been rejected.", a.FullName, when)
	case models.NotificationRescheduled:
		subject = "Your appointment has been rescheduled"
		body = fmt.Sprintf("Dear %s, your appointment has been moved to %s.", a.FullName, when)
	default:
		subject = "Appointment update"
		body = fmt.Sprintf("Dear %s, your appointment on %s has been updated.", a.FullName, when)
	}
	if detail != "" {
		body += " " + detail
	}
	return models.Notification{Kind: kind, AppointmentID: a.ID, Subject: subject, Body: body}
}
