package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniosun/tacdra-api/internal/models"
)

// NotificationRepository persists outbound status notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications
	(id, user_id, application_id, event, subject, body, sent, sent_at, created_at)
	VALUES (:id, :user_id, :application_id, :event, :subject, :body, :sent, :sent_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// MarkSent records successful delivery.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `UPDATE notifications SET sent = TRUE, sent_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, sentAt); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// ListByUser returns notifications for a user, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, user_id, application_id, event, subject, body, sent, sent_at, created_at
	FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}
