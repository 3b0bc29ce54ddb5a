package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
	"github.com/uniosun/tacdra-api/pkg/response"
)

type paymentService interface {
	Initialize(ctx context.Context, req dto.InitializePaymentRequest, actor *models.JWTClaims) (*dto.InitializePaymentResponse, error)
	Verify(ctx context.Context, req dto.VerifyPaymentRequest) (*models.Payment, error)
	HandleWebhook(ctx context.Context, payload dto.PaymentWebhookPayload) (*dto.WebhookAck, error)
	WebhookSignatureValid(body []byte, signature string) bool
	Receipt(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]byte, error)
	ListForApplication(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.Payment, error)
}

// PaymentHandler exposes payment lifecycle endpoints.
type PaymentHandler struct {
	service paymentService
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(service paymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Initialize godoc
// @Summary Initialize a gateway payment for an application
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.InitializePaymentRequest true "Application reference"
// @Success 201 {object} response.Envelope
// @Router /payments/initialize [post]
func (h *PaymentHandler) Initialize(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.InitializePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payment payload"))
		return
	}
	result, err := h.service.Initialize(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Verify godoc
// @Summary Verify a payment with the gateway
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.VerifyPaymentRequest true "RRR to verify"
// @Success 200 {object} response.Envelope
// @Router /payments/verify [post]
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid verify payload"))
		return
	}
	payment, err := h.service.Verify(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Webhook godoc
// @Summary Inbound gateway payment notification
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.PaymentWebhookPayload true "Gateway event"
// @Success 200 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid webhook payload"))
		return
	}
	// Signed events must carry a valid hash. The body is never trusted
	// either way; the service re-queries the gateway before settling.
	if sig := c.GetHeader("X-Remita-Signature"); sig != "" && !h.service.WebhookSignatureValid(body, sig) {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid webhook signature"))
		return
	}
	var payload dto.PaymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid webhook payload"))
		return
	}
	ack, err := h.service.HandleWebhook(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ack, nil)
}

// Receipt godoc
// @Summary Download the payment receipt PDF
// @Tags Payments
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {string} string "PDF payload"
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	data, err := h.service.Receipt(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// List godoc
// @Summary List payment attempts for an application
// @Tags Payments
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payments, err := h.service.ListForApplication(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}
