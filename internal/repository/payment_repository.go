package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniosun/tacdra-api/internal/models"
)

const paymentColumns = `id, application_id, amount, method, status, payment_reference,
       transaction_id, gateway_response, paid_at, created_at, updated_at`

// PaymentRepository persists payment attempts and gateway outcomes.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a new payment row.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}

	const query = `INSERT INTO payments
	(id, application_id, amount, method, status, payment_reference, transaction_id, gateway_response, paid_at, created_at, updated_at)
	VALUES (:id, :application_id, :amount, :method, :status, :payment_reference, :transaction_id, :gateway_response, :paid_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// GetByReference fetches a payment by its gateway reference (RRR).
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE payment_reference = $1 LIMIT 1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, reference); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get payment by reference: %w", err)
	}
	return &payment, nil
}

// GetByApplicationID returns payment attempts for an application, newest first.
func (r *PaymentRepository) GetByApplicationID(ctx context.Context, applicationID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE application_id = $1 ORDER BY created_at DESC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, applicationID); err != nil {
		return nil, fmt.Errorf("list payments for application: %w", err)
	}
	return payments, nil
}

// LatestSuccessful returns the most recent successful payment for an
// application, or sql.ErrNoRows when none exists.
func (r *PaymentRepository) LatestSuccessful(ctx context.Context, applicationID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE application_id = $1 AND status = $2 ORDER BY paid_at DESC LIMIT 1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, applicationID, models.PaymentStatusSuccess); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get latest successful payment: %w", err)
	}
	return &payment, nil
}

// UpdateOutcome records the gateway verdict for a payment attempt.
func (r *PaymentRepository) UpdateOutcome(ctx context.Context, id string, status models.PaymentStatus, transactionID string, gatewayResponse []byte, paidAt *time.Time) error {
	const query = `UPDATE payments SET status = $2, transaction_id = $3, gateway_response = $4, paid_at = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, transactionID, gatewayResponse, paidAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update payment outcome: %w", err)
	}
	return nil
}
