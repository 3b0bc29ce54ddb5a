package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
	"github.com/uniosun/tacdra-api/pkg/export"
	"github.com/uniosun/tacdra-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, req dto.CreateApplicationRequest, requesterID string) (*models.Application, error)
	Get(ctx context.Context, applicationID string, actor *models.JWTClaims) (*models.Application, error)
	ListForRequester(ctx context.Context, requesterID string, query dto.ApplicationQuery) ([]models.Application, int, error)
	ListReviewQueue(ctx context.Context, actor *models.JWTClaims, query dto.ApplicationQuery) ([]models.Application, int, error)
	Transition(ctx context.Context, applicationID string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Application, error)
	Finalize(ctx context.Context, applicationID string, req dto.FinalizeRequest, actor *models.JWTClaims) (*models.Application, error)
	Cancel(ctx context.Context, applicationID, requesterID string) (*models.Application, error)
	AddNote(ctx context.Context, applicationID string, req dto.NoteRequest, actor *models.JWTClaims) error
	Notes(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.ApplicationNote, error)
	ExportReviewQueue(ctx context.Context, actor *models.JWTClaims) (*export.Dataset, error)
}

// ApplicationHandler exposes REST endpoints for the document request workflow.
type ApplicationHandler struct {
	service  applicationService
	exporter *export.CSVExporter
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service, exporter: export.NewCSVExporter()}
}

// Submit godoc
// @Summary Submit a document request
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application payload"))
		return
	}
	app, err := h.service.Submit(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, app, nil)
}

// ListMine godoc
// @Summary List the caller's applications
// @Tags Applications
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param category query string false "Application category"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := parseApplicationQuery(c)
	apps, total, err := h.service.ListForRequester(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, paginationFor(query, total))
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Cancel godoc
// @Summary Cancel an application before review starts
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/cancel [post]
func (h *ApplicationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Transition godoc
// @Summary Apply a reviewer decision
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest true "Target status and optional note"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/transition [post]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	req.Status = models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if req.Status == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status is required"))
		return
	}
	app, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Finalize godoc
// @Summary Complete processing into the delivery-determined terminal status
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.FinalizeRequest false "Optional note and courier reference"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/finalize [post]
func (h *ApplicationHandler) Finalize(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.FinalizeRequest
	_ = c.ShouldBindJSON(&req)
	app, err := h.service.Finalize(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// ReviewQueue godoc
// @Summary List applications awaiting the caller's desk
// @Tags Applications
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications/review [get]
func (h *ApplicationHandler) ReviewQueue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := parseApplicationQuery(c)
	apps, total, err := h.service.ListReviewQueue(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, paginationFor(query, total))
}

// ExportReviewQueue godoc
// @Summary Export the caller's review queue as CSV
// @Tags Applications
// @Produce text/csv
// @Success 200 {string} string "CSV payload"
// @Router /applications/review/export [get]
func (h *ApplicationHandler) ExportReviewQueue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	dataset, err := h.service.ExportReviewQueue(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.exporter.Render(*dataset)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="review-queue.csv"`)
	c.Data(http.StatusOK, "text/csv", payload)
}

// AddNote godoc
// @Summary Append a staff note to an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.NoteRequest true "Note body"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/notes [post]
func (h *ApplicationHandler) AddNote(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid note payload"))
		return
	}
	if err := h.service.AddNote(c.Request.Context(), c.Param("id"), req, claims); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{"status": "created"}, nil)
}

// Notes godoc
// @Summary List the note trail for an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/notes [get]
func (h *ApplicationHandler) Notes(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	notes, err := h.service.Notes(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notes, nil)
}

func parseApplicationQuery(c *gin.Context) dto.ApplicationQuery {
	query := dto.ApplicationQuery{}
	if raw := c.Query("status"); raw != "" {
		parts := strings.Split(raw, ",")
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			query.Statuses = append(query.Statuses, models.ApplicationStatus(part))
		}
	}
	if raw := c.Query("category"); raw != "" {
		query.Category = models.ApplicationCategory(strings.ToUpper(strings.TrimSpace(raw)))
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.Query("page_size")); err == nil {
		query.PageSize = size
	}
	return query
}

func paginationFor(query dto.ApplicationQuery, total int) *models.Pagination {
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
