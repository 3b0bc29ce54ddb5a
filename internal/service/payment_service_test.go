package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
)

type paymentStoreStub struct {
	payments map[string]*models.Payment
	seq      int
}

func newPaymentStoreStub() *paymentStoreStub {
	return &paymentStoreStub{payments: make(map[string]*models.Payment)}
}

func (s *paymentStoreStub) Create(ctx context.Context, payment *models.Payment) error {
	s.seq++
	payment.ID = "pay-" + payment.PaymentReference
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	copy := *payment
	s.payments[payment.ID] = &copy
	return nil
}

func (s *paymentStoreStub) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	for _, payment := range s.payments {
		if payment.PaymentReference == reference {
			copy := *payment
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *paymentStoreStub) GetByApplicationID(ctx context.Context, applicationID string) ([]models.Payment, error) {
	var result []models.Payment
	for _, payment := range s.payments {
		if payment.ApplicationID == applicationID {
			result = append(result, *payment)
		}
	}
	return result, nil
}

func (s *paymentStoreStub) LatestSuccessful(ctx context.Context, applicationID string) (*models.Payment, error) {
	for _, payment := range s.payments {
		if payment.ApplicationID == applicationID && payment.Status == models.PaymentStatusSuccess {
			copy := *payment
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *paymentStoreStub) UpdateOutcome(ctx context.Context, id string, status models.PaymentStatus, transactionID string, gatewayResponse []byte, paidAt *time.Time) error {
	payment, ok := s.payments[id]
	if !ok {
		return sql.ErrNoRows
	}
	payment.Status = status
	payment.TransactionID = transactionID
	payment.GatewayResponse = gatewayResponse
	payment.PaidAt = paidAt
	return nil
}

type payerLookupStub struct {
	users map[string]*models.User
}

func (s *payerLookupStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type confirmerStub struct {
	confirmed []string
	failOnce  error
}

func (c *confirmerStub) ConfirmPayment(ctx context.Context, applicationID string, paidAt time.Time) (*models.Application, error) {
	if c.failOnce != nil {
		err := c.failOnce
		c.failOnce = nil
		return nil, err
	}
	c.confirmed = append(c.confirmed, applicationID)
	return &models.Application{ID: applicationID, Status: models.StatusProcessing, IsPaid: true}, nil
}

type gatewayStub struct {
	initResult *GatewayInitResult
	initErr    error
	verdict    *GatewayVerification
	verifyErr  error
	verified   []string
}

func (g *gatewayStub) Initialize(ctx context.Context, orderRef, amount, payerName, payerEmail, payerPhone, description string) (*GatewayInitResult, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	result := *g.initResult
	result.OrderRef = orderRef
	return &result, nil
}

func (g *gatewayStub) Verify(ctx context.Context, rrr string) (*GatewayVerification, error) {
	g.verified = append(g.verified, rrr)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verdict, nil
}

func (g *gatewayStub) PaymentURL(rrr string) string {
	return "https://gateway.test/pay/" + rrr
}

func (g *gatewayStub) WebhookSignatureValid(body []byte, signature string) bool {
	return true
}

func paymentFixture(t *testing.T, gateway *gatewayStub) (*PaymentService, *paymentStoreStub, *appStoreStub, *confirmerStub) {
	t.Helper()
	payments := newPaymentStoreStub()
	apps := newAppStoreStub()
	users := &payerLookupStub{users: map[string]*models.User{
		"student-1": {ID: "student-1", FirstName: "Adewale", LastName: "Ogunleye", Email: "adewale@example.com", PhoneNumber: "08030000000"},
	}}
	confirmer := &confirmerStub{}
	svc := NewPaymentService(payments, apps, users, confirmer, gateway, nil)
	return svc, payments, apps, confirmer
}

func TestPaymentInitialize(t *testing.T) {
	gateway := &gatewayStub{initResult: &GatewayInitResult{
		RRR:        "280000000001",
		PaymentURL: "https://gateway.test/pay/280000000001",
		Raw:        []byte(`{"statuscode":"025"}`),
	}}
	svc, payments, apps, _ := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)

	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	result, err := svc.Initialize(context.Background(), dto.InitializePaymentRequest{ApplicationID: app.ID}, claims)
	require.NoError(t, err)
	require.Equal(t, "280000000001", result.PaymentReference)
	require.Equal(t, "NGN", result.Currency)
	require.Equal(t, app.Amount.StringFixed(2), result.Amount)
	require.Len(t, payments.payments, 1)
	for _, payment := range payments.payments {
		require.Equal(t, models.PaymentStatusPending, payment.Status)
		require.Equal(t, models.PaymentMethodRemita, payment.Method)
		require.True(t, strings.HasPrefix(payment.TransactionID, "UNIOSUN_"))
	}
}

func TestPaymentInitializeEnforcesOwnershipAndState(t *testing.T) {
	gateway := &gatewayStub{initResult: &GatewayInitResult{RRR: "280000000001"}}
	svc, _, apps, _ := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)

	other := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}
	_, err := svc.Initialize(context.Background(), dto.InitializePaymentRequest{ApplicationID: app.ID}, other)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	paid := seedApplication(apps, models.StatusProcessing, true)
	owner := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	_, err = svc.Initialize(context.Background(), dto.InitializePaymentRequest{ApplicationID: paid.ID}, owner)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestPaymentVerifySuccessConfirmsApplication(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{
		Status:  "01",
		Message: "Transaction Successful",
		Raw:     []byte(`{"status":"01"}`),
	}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		Amount:           decimal.NewFromInt(3500),
		Method:           models.PaymentMethodRemita,
		PaymentReference: "280000000001",
		TransactionID:    "UNIOSUN_1_ABC",
	}))

	payment, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "280000000001"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.NotNil(t, payment.PaidAt)
	require.Equal(t, []string{app.ID}, confirmer.confirmed)
}

func TestPaymentVerifyIsIdempotent(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "01"}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusProcessing, true)
	now := time.Now().UTC()
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		Status:           models.PaymentStatusSuccess,
		PaymentReference: "280000000001",
		PaidAt:           &now,
	}))

	payment, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "280000000001"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.Empty(t, gateway.verified)
	// Confirmation is re-driven; the workflow engine treats it as a no-op.
	require.Equal(t, []string{app.ID}, confirmer.confirmed)
}

func TestPaymentVerifyUnknownReference(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "01"}}
	svc, _, _, _ := paymentFixture(t, gateway)

	_, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "000000000000"})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPaymentVerifyFailedVerdict(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "00", Message: "Transaction Failed"}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		PaymentReference: "280000000002",
	}))

	payment, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "280000000002"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, payment.Status)
	require.Empty(t, confirmer.confirmed)
}

func TestPaymentVerifyPendingVerdictLeavesRowUntouched(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "02", Message: "Transaction Pending"}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		PaymentReference: "280000000003",
	}))

	payment, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "280000000003"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, payment.Status)
	require.Empty(t, confirmer.confirmed)
}

func TestWebhookUnknownReferenceAcknowledgedNeutrally(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "01"}}
	svc, _, _, _ := paymentFixture(t, gateway)

	ack, err := svc.HandleWebhook(context.Background(), dto.PaymentWebhookPayload{Reference: "999999999999", Status: "01"})
	require.NoError(t, err)
	require.False(t, ack.Processed)
	require.Empty(t, gateway.verified)
}

func TestWebhookReverifiesWithGateway(t *testing.T) {
	// The webhook body claims success but the gateway verdict wins.
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "00", Message: "Transaction Failed"}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		PaymentReference: "280000000004",
	}))

	ack, err := svc.HandleWebhook(context.Background(), dto.PaymentWebhookPayload{Reference: "280000000004", Status: "01"})
	require.NoError(t, err)
	require.False(t, ack.Processed)
	require.Equal(t, []string{"280000000004"}, gateway.verified)
	require.Empty(t, confirmer.confirmed)
}

func TestWebhookAlreadyConfirmed(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "01"}}
	svc, payments, apps, _ := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusProcessing, true)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		Status:           models.PaymentStatusSuccess,
		PaymentReference: "280000000005",
	}))

	ack, err := svc.HandleWebhook(context.Background(), dto.PaymentWebhookPayload{Reference: "280000000005", Status: "01"})
	require.NoError(t, err)
	require.True(t, ack.Processed)
	require.Empty(t, gateway.verified)
}

func TestPaymentVerifyRetriesConfirmationAfterTransientFailure(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "01", Raw: []byte(`{"status":"01"}`)}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		PaymentReference: "280000000007",
	}))
	confirmer.failOnce = errors.New("connection reset by peer")

	_, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "280000000007"})
	require.Error(t, err)
	stored, err := payments.GetByReference(context.Background(), "280000000007")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSuccess, stored.Status)
	require.Empty(t, confirmer.confirmed)

	// The settled row must not strand the application: the next verify skips
	// the gateway but still confirms.
	payment, err := svc.Verify(context.Background(), dto.VerifyPaymentRequest{Reference: "280000000007"})
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.Equal(t, []string{app.ID}, confirmer.confirmed)
	require.Len(t, gateway.verified, 1)
}

func TestWebhookRetriesConfirmationAfterTransientFailure(t *testing.T) {
	gateway := &gatewayStub{verdict: &GatewayVerification{Status: "01", Raw: []byte(`{"status":"01"}`)}}
	svc, payments, apps, confirmer := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		PaymentReference: "280000000008",
	}))
	confirmer.failOnce = errors.New("connection reset by peer")

	_, err := svc.HandleWebhook(context.Background(), dto.PaymentWebhookPayload{Reference: "280000000008", Status: "01"})
	require.Error(t, err)
	require.Empty(t, confirmer.confirmed)

	ack, err := svc.HandleWebhook(context.Background(), dto.PaymentWebhookPayload{Reference: "280000000008", Status: "01"})
	require.NoError(t, err)
	require.True(t, ack.Processed)
	require.Equal(t, []string{app.ID}, confirmer.confirmed)
	require.Len(t, gateway.verified, 1)
}

func TestReceiptRequiresVerifiedPayment(t *testing.T) {
	gateway := &gatewayStub{}
	svc, _, apps, _ := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusPaymentPending, false)

	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	_, err := svc.Receipt(context.Background(), app.ID, claims)
	require.True(t, appErrors.Is(err, appErrors.ErrPaymentNotVerified))
}

func TestReceiptRendersPDF(t *testing.T) {
	gateway := &gatewayStub{}
	svc, payments, apps, _ := paymentFixture(t, gateway)
	app := seedApplication(apps, models.StatusCompleted, true)
	now := time.Now().UTC()
	require.NoError(t, payments.Create(context.Background(), &models.Payment{
		ApplicationID:    app.ID,
		Amount:           decimal.NewFromInt(3500),
		Method:           models.PaymentMethodRemita,
		Status:           models.PaymentStatusSuccess,
		PaymentReference: "280000000006",
		PaidAt:           &now,
	}))

	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	data, err := svc.Receipt(context.Background(), app.ID, claims)
	require.NoError(t, err)
	require.True(t, len(data) > 0)
	require.Equal(t, "%PDF", string(data[:4]))
}
