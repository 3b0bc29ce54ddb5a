package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"
)

// SandboxGateway simulates Remita for development environments without
// gateway credentials. Every initialization succeeds and every verification
// reports a successful settlement.
type SandboxGateway struct {
	logger *zap.Logger
}

// NewSandboxGateway constructs the simulated gateway.
func NewSandboxGateway(logger *zap.Logger) *SandboxGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SandboxGateway{logger: logger}
}

// Initialize returns a generated RRR without any network call.
func (g *SandboxGateway) Initialize(ctx context.Context, orderRef, amount, payerName, payerEmail, payerPhone, description string) (*GatewayInitResult, error) {
	rrr := sandboxReference()
	g.logger.Info("sandbox payment initialized",
		zap.String("order_ref", orderRef),
		zap.String("rrr", rrr))
	return &GatewayInitResult{
		RRR:        rrr,
		OrderRef:   orderRef,
		PaymentURL: g.PaymentURL(rrr),
		Raw:        []byte(fmt.Sprintf(`{"statuscode":"025","status":"success","RRR":"%s","amount":"%s"}`, rrr, amount)),
	}, nil
}

// Verify always reports a successful settlement.
func (g *SandboxGateway) Verify(ctx context.Context, rrr string) (*GatewayVerification, error) {
	return &GatewayVerification{
		Status:  remitaVerifySuccess01,
		Message: "Transaction Successful",
		Channel: "sandbox",
		Raw:     []byte(fmt.Sprintf(`{"status":"01","message":"Transaction Successful","RRR":"%s"}`, rrr)),
	}, nil
}

// WebhookSignatureValid accepts every signature; the sandbox has no API key.
func (g *SandboxGateway) WebhookSignatureValid(body []byte, signature string) bool {
	return true
}

// PaymentURL returns a placeholder checkout URL.
func (g *SandboxGateway) PaymentURL(rrr string) string {
	return "https://remitademo.net/remita/ecomm/finalize.reg?RRR=" + rrr
}

func sandboxReference() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000_000))
	if err != nil {
		return "000000000000"
	}
	return fmt.Sprintf("%012d", n.Int64())
}
