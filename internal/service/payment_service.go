package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
	"github.com/uniosun/tacdra-api/pkg/export"
)

type paymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	GetByApplicationID(ctx context.Context, applicationID string) ([]models.Payment, error)
	LatestSuccessful(ctx context.Context, applicationID string) (*models.Payment, error)
	UpdateOutcome(ctx context.Context, id string, status models.PaymentStatus, transactionID string, gatewayResponse []byte, paidAt *time.Time) error
}

type applicationLookup interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
}

type payerLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, applicationID string, paidAt time.Time) (*models.Application, error)
}

type paymentMetrics interface {
	RecordPayment(status models.PaymentStatus)
}

// PaymentService drives the gateway payment lifecycle: initialization,
// verification and webhook processing. Payment confirmation feeds back into
// the workflow engine, which owns the status change.
type PaymentService struct {
	payments paymentStore
	apps     applicationLookup
	users    payerLookup
	workflow paymentConfirmer
	gateway  PaymentGateway
	receipts *export.ReceiptRenderer
	metrics  paymentMetrics
	logger   *zap.Logger
}

// PaymentServiceOption configures the service.
type PaymentServiceOption func(*PaymentService)

// WithPaymentMetrics wires Prometheus counters for settlement outcomes.
func WithPaymentMetrics(metrics paymentMetrics) PaymentServiceOption {
	return func(s *PaymentService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewPaymentService constructs the service.
func NewPaymentService(payments paymentStore, apps applicationLookup, users payerLookup, workflow paymentConfirmer, gateway PaymentGateway, logger *zap.Logger, opts ...PaymentServiceOption) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &PaymentService{
		payments: payments,
		apps:     apps,
		users:    users,
		workflow: workflow,
		gateway:  gateway,
		receipts: export.NewReceiptRenderer(),
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Initialize registers a gateway payment for the actor's own application and
// records a pending payment row keyed by the returned RRR.
func (s *PaymentService) Initialize(ctx context.Context, req dto.InitializePaymentRequest, actor *models.JWTClaims) (*dto.InitializePaymentResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.apps.GetByID(ctx, req.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.RequesterID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if app.IsPaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application is already paid")
	}
	if app.Status != models.StatusPaymentPending {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("cannot initialize payment in status %s", app.Status))
	}

	payer, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payer")
	}

	amount := app.Amount.StringFixed(2)
	orderRef := newOrderRef()
	description := fmt.Sprintf("UNIOSUN TACDRA Payment for %s", app.TrackingCode)

	result, err := s.gateway.Initialize(ctx, orderRef, amount, payer.FullName(), payer.Email, payer.PhoneNumber, description)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment initialization failed")
	}

	payment := &models.Payment{
		ApplicationID:    app.ID,
		Amount:           app.Amount,
		Method:           models.PaymentMethodRemita,
		Status:           models.PaymentStatusPending,
		PaymentReference: result.RRR,
		TransactionID:    orderRef,
		GatewayResponse:  result.Raw,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.logger.Info("payment initialized",
		zap.String("application_id", app.ID),
		zap.String("tracking_code", app.TrackingCode),
		zap.String("rrr", result.RRR))
	return &dto.InitializePaymentResponse{
		ApplicationID:    app.ID,
		TrackingCode:     app.TrackingCode,
		Amount:           amount,
		Currency:         "NGN",
		PaymentReference: result.RRR,
		PaymentURL:       result.PaymentURL,
	}, nil
}

// Verify asks the gateway for the settlement status of an RRR and, on a
// successful verdict, confirms the payment on the application. An already
// settled payment skips the gateway but still drives confirmation.
func (s *PaymentService) Verify(ctx context.Context, req dto.VerifyPaymentRequest) (*models.Payment, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rrr is required")
	}
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no payment matches this reference")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusSuccess {
		// Re-confirm so a settled row whose earlier confirmation failed
		// still reaches the workflow engine. Confirming an already paid
		// application is a no-op.
		if err := s.confirmApplication(ctx, payment); err != nil {
			return nil, err
		}
		return payment, nil
	}

	verdict, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment verification failed")
	}
	return s.settle(ctx, payment, verdict)
}

// HandleWebhook processes an inbound gateway confirmation. The gateway is
// always re-queried before trusting the event. Unknown references are
// acknowledged without processing so the gateway stops retrying.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload dto.PaymentWebhookPayload) (*dto.WebhookAck, error) {
	reference := strings.TrimSpace(payload.Reference)
	if reference == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "webhook payload missing rrr")
	}
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("webhook for unknown payment reference", zap.String("rrr", reference))
			return &dto.WebhookAck{Processed: false, Message: "unknown payment reference"}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusSuccess {
		if err := s.confirmApplication(ctx, payment); err != nil {
			return nil, err
		}
		return &dto.WebhookAck{Processed: true, Message: "payment already confirmed"}, nil
	}

	verdict, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "payment verification failed")
	}
	if _, err := s.settle(ctx, payment, verdict); err != nil {
		return nil, err
	}
	return &dto.WebhookAck{Processed: verdict.Successful(), Message: verdict.Message}, nil
}

// WebhookSignatureValid checks an inbound event signature against the
// gateway's signing scheme.
func (s *PaymentService) WebhookSignatureValid(body []byte, signature string) bool {
	return s.gateway.WebhookSignatureValid(body, signature)
}

// Receipt renders a PDF receipt for the latest successful payment on an
// application. Staff may fetch any receipt; requesters only their own.
func (s *PaymentService) Receipt(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !isStaff(actor.Role) && app.RequesterID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if !app.IsPaid {
		return nil, appErrors.ErrPaymentNotVerified
	}
	payment, err := s.payments.LatestSuccessful(ctx, app.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no successful payment on record")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	paidAt := ""
	if payment.PaidAt != nil {
		paidAt = payment.PaidAt.UTC().Format("2006-01-02 15:04 MST")
	}
	receipt := export.Receipt{
		Title:     "UNIOSUN TACDRA PAYMENT RECEIPT",
		Reference: payment.PaymentReference,
		Fields: []export.ReceiptField{
			{Label: "Tracking Code", Value: app.TrackingCode},
			{Label: "Request Type", Value: string(app.Category)},
			{Label: "Delivery Method", Value: string(app.DeliveryMethod)},
			{Label: "Amount Paid", Value: "NGN " + payment.Amount.StringFixed(2)},
			{Label: "Payment Method", Value: string(payment.Method)},
			{Label: "Paid At", Value: paidAt},
		},
		Footer: "This receipt was generated electronically by the Osun State University document registry and requires no signature.",
	}
	data, err := s.receipts.Render(receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return data, nil
}

// ListForApplication returns payment attempts for an application.
func (s *PaymentService) ListForApplication(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.Payment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !isStaff(actor.Role) && app.RequesterID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	payments, err := s.payments.GetByApplicationID(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

func (s *PaymentService) settle(ctx context.Context, payment *models.Payment, verdict *GatewayVerification) (*models.Payment, error) {
	switch {
	case verdict.Successful():
		now := time.Now().UTC()
		if err := s.payments.UpdateOutcome(ctx, payment.ID, models.PaymentStatusSuccess, payment.TransactionID, verdict.Raw, &now); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment outcome")
		}
		payment.Status = models.PaymentStatusSuccess
		payment.PaidAt = &now
		if s.metrics != nil {
			s.metrics.RecordPayment(models.PaymentStatusSuccess)
		}
		if err := s.confirmApplication(ctx, payment); err != nil {
			return nil, err
		}
		return payment, nil
	case verdict.Pending():
		s.logger.Info("payment still pending at gateway", zap.String("rrr", payment.PaymentReference))
		return payment, nil
	default:
		if err := s.payments.UpdateOutcome(ctx, payment.ID, models.PaymentStatusFailed, payment.TransactionID, verdict.Raw, nil); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment outcome")
		}
		payment.Status = models.PaymentStatusFailed
		if s.metrics != nil {
			s.metrics.RecordPayment(models.PaymentStatusFailed)
		}
		return payment, nil
	}
}

// confirmApplication feeds a settled payment into the workflow engine. The
// engine ignores already paid applications, so re-confirming a settled row
// whose earlier confirmation failed transiently is safe and is what heals it.
func (s *PaymentService) confirmApplication(ctx context.Context, payment *models.Payment) error {
	paidAt := time.Now().UTC()
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	if _, err := s.workflow.ConfirmPayment(ctx, payment.ApplicationID, paidAt); err != nil {
		s.logger.Error("payment settled but confirmation failed",
			zap.Error(err),
			zap.String("application_id", payment.ApplicationID),
			zap.String("rrr", payment.PaymentReference))
		return err
	}
	return nil
}

func newOrderRef() string {
	n, err := rand.Int(rand.Reader, big.NewInt(36*36*36*36*36*36*36))
	suffix := "0000000"
	if err == nil {
		suffix = strings.ToUpper(n.Text(36))
	}
	return fmt.Sprintf("UNIOSUN_%d_%s", time.Now().UnixMilli(), suffix)
}
