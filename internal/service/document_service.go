package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
	"github.com/uniosun/tacdra-api/pkg/storage"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error)
}

// DocumentService manages issued document artifacts: upload by staff, signed
// time-limited downloads for requesters. File bytes never leave the storage
// directory except through a validated token.
type DocumentService struct {
	docs    documentStore
	apps    applicationLookup
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(docs documentStore, apps applicationLookup, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{docs: docs, apps: apps, storage: store, signer: signer, logger: logger}
}

// Upload stores a document file for an application. Staff only.
func (s *DocumentService) Upload(ctx context.Context, applicationID, filename, mimeType string, r io.Reader, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !isStaff(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, appErrors.Clone(appErrors.ErrValidation, "filename is required")
	}
	docID := uuid.NewString()
	relPath := filepath.Join(app.ID, docID+"_"+filename)

	stored, err := s.storage.SaveStream(relPath, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	var size int64
	if file, err := s.storage.Open(stored); err == nil {
		if info, err := file.Stat(); err == nil {
			size = info.Size()
		}
		file.Close()
	}

	doc := &models.Document{
		ID:            docID,
		ApplicationID: app.ID,
		Filename:      filename,
		MimeType:      mimeType,
		SizeBytes:     size,
		StoragePath:   stored,
		UploadedBy:    actor.UserID,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(stored); delErr != nil {
			s.logger.Warn("failed to remove orphaned document file", zap.Error(delErr), zap.String("path", stored))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	s.logger.Info("document uploaded",
		zap.String("application_id", app.ID),
		zap.String("document_id", doc.ID),
		zap.String("tracking_code", app.TrackingCode))
	return doc, nil
}

// List returns document metadata for an application, enforcing ownership for
// non-staff actors.
func (s *DocumentService) List(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.Document, error) {
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
	docs, err := s.docs.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// SignedDownload issues a time-limited download token for a document. The
// document must belong to a paid, non-rejected application the actor may see.
func (s *DocumentService) SignedDownload(ctx context.Context, documentID string, actor *models.JWTClaims) (*dto.DocumentDownload, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	app, err := s.apps.GetByID(ctx, doc.ApplicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !isStaff(actor.Role) && app.RequesterID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if !app.IsPaid {
		return nil, appErrors.ErrPaymentNotVerified
	}

	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}
	return &dto.DocumentDownload{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		URL:        fmt.Sprintf("/api/v1/documents/download/%s", token),
		ExpiresAt:  expiresAt,
	}, nil
}

// ResolveToken validates a signed download token and returns the document
// metadata plus an open file handle. The caller closes the file.
func (s *DocumentService) ResolveToken(ctx context.Context, token string) (*models.Document, io.ReadCloser, error) {
	documentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.StoragePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match document")
	}
	file, err := s.storage.Open(doc.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document file")
	}
	return doc, file, nil
}

// CleanupOrphans removes stored files older than the retention window. Run
// from a maintenance cron, not the request path.
func (s *DocumentService) CleanupOrphans(ttl time.Duration) ([]string, error) {
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup boots a goroutine that purges expired document files
// periodically. A non-positive ttl disables retention entirely.
func (s *DocumentService) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.CleanupOrphans(ttl)
				if err != nil {
					s.logger.Sugar().Warnw("document cleanup failed", "error", err)
					continue
				}
				if len(removed) > 0 {
					s.logger.Sugar().Infow("expired document files removed", "count", len(removed))
				}
			}
		}
	}()
}
