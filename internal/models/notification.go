package models

import "time"

// NotificationEvent labels the workflow event a notification reports.
type NotificationEvent string

const (
	NotificationSubmitted     NotificationEvent = "APPLICATION_SUBMITTED"
	NotificationPaymentOK     NotificationEvent = "PAYMENT_CONFIRMED"
	NotificationStatusUpdated NotificationEvent = "STATUS_UPDATED"
	NotificationReady         NotificationEvent = "DOCUMENT_READY"
	NotificationRejected      NotificationEvent = "APPLICATION_REJECTED"
)

// Notification is a persisted outbound status message. Delivery is
// best-effort and never blocks the workflow transition that produced it.
type Notification struct {
	ID            string            `db:"id" json:"id"`
	UserID        string            `db:"user_id" json:"user_id"`
	ApplicationID string            `db:"application_id" json:"application_id"`
	Event         NotificationEvent `db:"event" json:"event"`
	Subject       string            `db:"subject" json:"subject"`
	Body          string            `db:"body" json:"body"`
	Sent          bool              `db:"sent" json:"sent"`
	SentAt        *time.Time        `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}
