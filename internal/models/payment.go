package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus reflects the gateway-reported state of one payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod identifies the channel a payment was made through.
type PaymentMethod string

const (
	PaymentMethodRemita       PaymentMethod = "REMITA"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "CARD"
)

// Payment records one payment attempt against an application. The payment
// reference (Remita RRR) is the external correlation key for verification
// calls and webhook events.
type Payment struct {
	ID               string          `db:"id" json:"id"`
	ApplicationID    string          `db:"application_id" json:"application_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Method           PaymentMethod   `db:"method" json:"method"`
	Status           PaymentStatus   `db:"status" json:"status"`
	PaymentReference string          `db:"payment_reference" json:"payment_reference"`
	TransactionID    string          `db:"transaction_id" json:"transaction_id"`
	GatewayResponse  []byte          `db:"gateway_response" json:"gateway_response,omitempty"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
