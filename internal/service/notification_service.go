package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniosun/tacdra-api/internal/models"
	"github.com/uniosun/tacdra-api/pkg/config"
	"github.com/uniosun/tacdra-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
}

type recipientLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Sender delivers one rendered notification to a recipient address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SenderFunc allows using plain functions as senders.
type SenderFunc func(ctx context.Context, to, subject, body string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

type notificationJob struct {
	UserID       string
	AppID        string
	TrackingCode string
	Status       models.ApplicationStatus
	Event        models.NotificationEvent
	Note         string
}

// NotificationService dispatches status notifications asynchronously through
// an in-memory worker queue. Dispatch is best-effort: a failed delivery never
// rolls back or blocks the workflow transition that produced it.
type NotificationService struct {
	store   notificationStore
	users   recipientLookup
	sender  Sender
	queue   *jobs.Queue
	from    string
	enabled bool
	logger  *zap.Logger
}

// NotificationServiceOption configures the service.
type NotificationServiceOption func(*NotificationService)

// WithSender overrides the delivery backend.
func WithSender(sender Sender) NotificationServiceOption {
	return func(s *NotificationService) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// NewNotificationService constructs the dispatcher and its worker queue.
func NewNotificationService(store notificationStore, users recipientLookup, cfg config.NotificationsConfig, logger *zap.Logger, opts ...NotificationServiceOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		store:   store,
		users:   users,
		from:    cfg.SenderAddress,
		enabled: cfg.Enabled,
		logger:  logger,
	}
	svc.sender = SenderFunc(func(ctx context.Context, to, subject, body string) error {
		// No SMTP relay is configured in this deployment; deliveries are
		// recorded in the log until the relay lands.
		logger.Info("notification delivered",
			zap.String("to", to),
			zap.String("subject", subject))
		return nil
	})
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return svc
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyStatusChange queues an outbound notification for the application's
// requester. Queue overflow is logged and dropped.
func (s *NotificationService) NotifyStatusChange(app *models.Application, event models.NotificationEvent, note string) {
	if !s.enabled || app == nil {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: string(event),
		Payload: notificationJob{
			UserID:       app.RequesterID,
			AppID:        app.ID,
			TrackingCode: app.TrackingCode,
			Status:       app.Status,
			Event:        event,
			Note:         note,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.Error(err),
			zap.String("application_id", app.ID),
			zap.String("event", string(event)))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationJob)
	if !ok {
		s.logger.Error("notification job has unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	user, err := s.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load notification recipient: %w", err)
	}

	subject, body := composeNotification(user, payload)
	notification := &models.Notification{
		UserID:        payload.UserID,
		ApplicationID: payload.AppID,
		Event:         payload.Event,
		Subject:       subject,
		Body:          body,
	}
	if err := s.store.Create(ctx, notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	if err := s.sender.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	if err := s.store.MarkSent(ctx, notification.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to mark notification sent", zap.Error(err), zap.String("notification_id", notification.ID))
	}
	return nil
}

func composeNotification(user *models.User, payload notificationJob) (string, string) {
	var subject string
	switch payload.Event {
	case models.NotificationSubmitted:
		subject = fmt.Sprintf("Application %s received", payload.TrackingCode)
	case models.NotificationPaymentOK:
		subject = fmt.Sprintf("Payment confirmed for %s", payload.TrackingCode)
	case models.NotificationReady:
		subject = fmt.Sprintf("Your document for %s is ready", payload.TrackingCode)
	case models.NotificationRejected:
		subject = fmt.Sprintf("Application %s was not approved", payload.TrackingCode)
	default:
		subject = fmt.Sprintf("Update on application %s", payload.TrackingCode)
	}

	body := fmt.Sprintf("Dear %s,\n\nYour application %s is now in status %s.\n%s\n",
		user.FullName(), payload.TrackingCode, payload.Status, StatusDescription(payload.Status))
	if payload.Note != "" {
		body += "\nNote from the registry: " + payload.Note + "\n"
	}
	body += "\nYou can follow progress at any time using your tracking code.\n\nOsun State University Registry"
	return subject, body
}
