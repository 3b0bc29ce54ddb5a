package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniosun/tacdra-api/internal/models"
	"github.com/uniosun/tacdra-api/pkg/response"
)

type trackingService interface {
	TrackByCode(ctx context.Context, code string) (*models.PublicStatusView, error)
}

// TrackingHandler serves the public, unauthenticated tracking lookup.
type TrackingHandler struct {
	service trackingService
}

// NewTrackingHandler constructs the handler.
func NewTrackingHandler(service trackingService) *TrackingHandler {
	return &TrackingHandler{service: service}
}

// Track godoc
// @Summary Look up application status by tracking code
// @Tags Tracking
// @Produce json
// @Param code path string true "Tracking code"
// @Success 200 {object} response.Envelope
// @Router /track/{code} [get]
func (h *TrackingHandler) Track(c *gin.Context) {
	view, err := h.service.TrackByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
