package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
	"github.com/uniosun/tacdra-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, applicationID, filename, mimeType string, r io.Reader, actor *models.JWTClaims) (*models.Document, error)
	List(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.Document, error)
	SignedDownload(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.DocumentDownload, error)
	ResolveToken(ctx context.Context, token string) (*models.Document, io.ReadCloser, error)
}

// DocumentHandler exposes issued-document endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload godoc
// @Summary Upload an issued document for an application
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param file formData file true "Document file"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	doc, err := h.service.Upload(c.Request.Context(), c.Param("id"), fileHeader.Filename, mimeType, file, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, doc, nil)
}

// List godoc
// @Summary List documents attached to an application
// @Tags Documents
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	docs, err := h.service.List(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// SignedURL godoc
// @Summary Issue a time-limited download link for a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/url [get]
func (h *DocumentHandler) SignedURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	download, err := h.service.SignedDownload(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download godoc
// @Summary Download a document via signed token
// @Tags Documents
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {string} string "File payload"
// @Router /documents/download/{token} [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, file, err := h.service.ResolveToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.DataFromReader(http.StatusOK, doc.SizeBytes, mimeType, file, nil)
}
