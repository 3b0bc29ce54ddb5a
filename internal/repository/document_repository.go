package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uniosun/tacdra-api/internal/models"
)

const documentColumns = `id, application_id, filename, mime_type, size_bytes, storage_path, qr_code, uploaded_by, created_at`

// DocumentRepository persists metadata for issued document artifacts.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document metadata row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents
	(id, application_id, filename, mime_type, size_bytes, storage_path, qr_code, uploaded_by, created_at)
	VALUES (:id, :application_id, :filename, :mime_type, :size_bytes, :storage_path, :qr_code, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document by identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1 LIMIT 1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListByApplication returns documents attached to an application, newest first.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE application_id = $1 ORDER BY created_at DESC`, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list documents for application: %w", err)
	}
	return docs, nil
}
