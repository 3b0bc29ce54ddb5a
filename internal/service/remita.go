package service

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uniosun/tacdra-api/pkg/config"
)

// Remita status codes. Initialization succeeds only on 025; verification
// reports 01 successful, 02 pending and 00 failed.
const (
	remitaInitSuccess     = "025"
	remitaVerifySuccess01 = "01"
	remitaVerifyPending   = "02"
	remitaVerifyFailed    = "00"
)

// GatewayInitResult is the outcome of a payment initialization call.
type GatewayInitResult struct {
	RRR        string
	OrderRef   string
	PaymentURL string
	Raw        []byte
}

// GatewayVerification is the gateway's verdict on a payment reference.
type GatewayVerification struct {
	Status      string
	Message     string
	Amount      string
	PaymentDate string
	Channel     string
	Raw         []byte
}

// Successful reports whether the gateway confirmed the payment.
func (v GatewayVerification) Successful() bool {
	return v.Status == remitaVerifySuccess01
}

// Pending reports whether the gateway is still settling the payment.
func (v GatewayVerification) Pending() bool {
	return v.Status == remitaVerifyPending
}

// PaymentGateway abstracts the Remita e-channel API so the payment service
// can run against the sandbox mock in development and tests.
type PaymentGateway interface {
	Initialize(ctx context.Context, orderRef, amount, payerName, payerEmail, payerPhone, description string) (*GatewayInitResult, error)
	Verify(ctx context.Context, rrr string) (*GatewayVerification, error)
	PaymentURL(rrr string) string
	WebhookSignatureValid(body []byte, signature string) bool
}

// RemitaGateway talks to the Remita e-channel endpoints. Requests are signed
// with SHA-512 hashes over credential and reference fields as the gateway
// requires; there is no official Go SDK.
type RemitaGateway struct {
	cfg    config.RemitaConfig
	client *http.Client
	logger *zap.Logger
}

// NewRemitaGateway constructs the live gateway client.
func NewRemitaGateway(cfg config.RemitaConfig, logger *zap.Logger) *RemitaGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemitaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type remitaInitRequest struct {
	ServiceTypeID string `json:"serviceTypeId"`
	Amount        string `json:"amount"`
	OrderID       string `json:"orderId"`
	PayerName     string `json:"payerName"`
	PayerEmail    string `json:"payerEmail"`
	PayerPhone    string `json:"payerPhone"`
	Description   string `json:"description"`
}

type remitaInitResponse struct {
	StatusCode string `json:"statuscode"`
	Status     string `json:"status"`
	RRR        string `json:"RRR"`
	Amount     string `json:"amount"`
}

// Initialize registers a payment and returns the Remita Retrieval Reference.
func (g *RemitaGateway) Initialize(ctx context.Context, orderRef, amount, payerName, payerEmail, payerPhone, description string) (*GatewayInitResult, error) {
	payload := remitaInitRequest{
		ServiceTypeID: g.cfg.ServiceTypeID,
		Amount:        amount,
		OrderID:       orderRef,
		PayerName:     payerName,
		PayerEmail:    payerEmail,
		PayerPhone:    payerPhone,
		Description:   description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal remita init payload: %w", err)
	}

	hash := sha512Hex(g.cfg.MerchantID + g.cfg.ServiceTypeID + orderRef + amount + g.cfg.APIKey)
	url := fmt.Sprintf("%s/remita/ecomm/%s/init.reg", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.MerchantID)

	raw, err := g.do(ctx, http.MethodPost, url, hash, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp remitaInitResponse
	if err := json.Unmarshal(stripJSONP(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode remita init response: %w", err)
	}
	if resp.StatusCode != remitaInitSuccess {
		return nil, fmt.Errorf("remita initialization failed: %s (%s)", resp.Status, resp.StatusCode)
	}

	g.logger.Info("remita payment initialized",
		zap.String("order_ref", orderRef),
		zap.String("rrr", resp.RRR))
	return &GatewayInitResult{
		RRR:        resp.RRR,
		OrderRef:   orderRef,
		PaymentURL: g.PaymentURL(resp.RRR),
		Raw:        raw,
	}, nil
}

type remitaVerifyResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Amount      string `json:"amount"`
	RRR         string `json:"RRR"`
	PaymentDate string `json:"paymentDate"`
	Channel     string `json:"channel"`
}

// Verify asks the gateway for the settlement status of an RRR.
func (g *RemitaGateway) Verify(ctx context.Context, rrr string) (*GatewayVerification, error) {
	hash := sha512Hex(rrr + g.cfg.APIKey + g.cfg.MerchantID)
	url := fmt.Sprintf("%s/remita/ecomm/%s/%s/%s/status.reg",
		strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.MerchantID, rrr, hash)

	raw, err := g.do(ctx, http.MethodGet, url, hash, nil)
	if err != nil {
		return nil, err
	}

	var resp remitaVerifyResponse
	if err := json.Unmarshal(stripJSONP(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode remita verify response: %w", err)
	}
	message := resp.Message
	if message == "" {
		message = "Payment verification completed"
	}
	return &GatewayVerification{
		Status:      resp.Status,
		Message:     message,
		Amount:      resp.Amount,
		PaymentDate: resp.PaymentDate,
		Channel:     resp.Channel,
		Raw:         raw,
	}, nil
}

// WebhookSignatureValid checks the SHA-512 hash the gateway sends with
// notification events, computed over the raw request body plus the API key.
func (g *RemitaGateway) WebhookSignatureValid(body []byte, signature string) bool {
	expected := sha512Hex(string(body) + g.cfg.APIKey)
	given := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}

// PaymentURL builds the hosted checkout URL for an RRR.
func (g *RemitaGateway) PaymentURL(rrr string) string {
	hash := sha512Hex(g.cfg.MerchantID + rrr + g.cfg.APIKey)
	return fmt.Sprintf("%s/remita/ecomm/finalize.reg?merchantId=%s&RRR=%s&hash=%s",
		strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.MerchantID, rrr, hash)
}

func (g *RemitaGateway) do(ctx context.Context, method, url, hash string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build remita request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization",
		fmt.Sprintf("remitaConsumerKey=%s,remitaConsumerToken=%s", g.cfg.MerchantID, hash))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call remita: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read remita response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remita returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func sha512Hex(data string) string {
	sum := sha512.Sum512([]byte(data))
	return hex.EncodeToString(sum[:])
}

// stripJSONP removes the jsonp wrapper some Remita endpoints add around their
// JSON bodies.
func stripJSONP(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	open := strings.Index(s, "(")
	if open >= 0 && strings.HasSuffix(s, ")") && !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return []byte(s[open+1 : len(s)-1])
	}
	return raw
}
