package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/uniosun/tacdra-api/internal/models"
)

// ErrDuplicateTrackingCode is returned by Create when the generated tracking
// code collides with an existing row. Callers regenerate and retry.
var ErrDuplicateTrackingCode = errors.New("tracking code already exists")

const applicationColumns = `id, tracking_code, category, transcript_type, delivery_method, status, amount,
       is_paid, paid_at, purpose, recipient_name, recipient_email, recipient_address,
       institution_name, institution_email, institution_address, courier_reference,
       processing_days, requester_id, version, created_at, updated_at`

// ApplicationRepository persists document request applications and their notes.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application row. The unique index on tracking_code is
// the single source of truth for code uniqueness.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Version == 0 {
		app.Version = 1
	}

	const query = `INSERT INTO applications
	(id, tracking_code, category, transcript_type, delivery_method, status, amount,
	 is_paid, paid_at, purpose, recipient_name, recipient_email, recipient_address,
	 institution_name, institution_email, institution_address, courier_reference,
	 processing_days, requester_id, version, created_at, updated_at)
	VALUES (:id, :tracking_code, :category, :transcript_type, :delivery_method, :status, :amount,
	 :is_paid, :paid_at, :purpose, :recipient_name, :recipient_email, :recipient_address,
	 :institution_name, :institution_email, :institution_address, :courier_reference,
	 :processing_days, :requester_id, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "tracking_code") {
			return ErrDuplicateTrackingCode
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &app, nil
}

// GetByTrackingCode fetches an application by its public tracking code.
func (r *ApplicationRepository) GetByTrackingCode(ctx context.Context, code string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE tracking_code = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get application by tracking code: %w", err)
	}
	return &app, nil
}

// List returns applications matching the filter with the total count,
// newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	baseQuery := `FROM applications WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.RequesterID != "" {
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)+1))
		args = append(args, filter.RequesterID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.PaidOnly {
		conditions = append(conditions, "is_paid = TRUE")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		applicationColumns, baseQuery, pageSize, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	return apps, total, nil
}

// StatusUpdateParams groups the columns a workflow transition may touch.
// ExpectedVersion guards against concurrent writers.
type StatusUpdateParams struct {
	ID               string
	ExpectedVersion  int64
	Status           models.ApplicationStatus
	IsPaid           *bool
	PaidAt           *time.Time
	CourierReference *string
}

// UpdateStatus applies a versioned status change. The update only lands when
// the stored version still matches ExpectedVersion; zero affected rows means
// another writer got there first and sql.ErrNoRows is returned.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, params StatusUpdateParams) error {
	setParts := []string{
		"status = :status",
		"version = version + 1",
		"updated_at = :updated_at",
	}
	if params.IsPaid != nil {
		setParts = append(setParts, "is_paid = :is_paid")
	}
	if params.PaidAt != nil {
		setParts = append(setParts, "paid_at = :paid_at")
	}
	if params.CourierReference != nil {
		setParts = append(setParts, "courier_reference = :courier_reference")
	}
	query := fmt.Sprintf("UPDATE applications SET %s WHERE id = :id AND version = :expected_version",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                params.ID,
		"expected_version":  params.ExpectedVersion,
		"status":            params.Status,
		"updated_at":        time.Now().UTC(),
		"is_paid":           params.IsPaid,
		"paid_at":           params.PaidAt,
		"courier_reference": params.CourierReference,
	})
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendNote stores an immutable annotation on the application trail.
func (r *ApplicationRepository) AppendNote(ctx context.Context, note *models.ApplicationNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO application_notes (id, application_id, author_id, body, created_at)
	VALUES (:id, :application_id, :author_id, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, note); err != nil {
		return fmt.Errorf("append application note: %w", err)
	}
	return nil
}

// ListNotes returns the note trail for an application, oldest first.
func (r *ApplicationRepository) ListNotes(ctx context.Context, applicationID string) ([]models.ApplicationNote, error) {
	const query = `SELECT id, application_id, author_id, body, created_at
	FROM application_notes WHERE application_id = $1 ORDER BY created_at ASC`
	var notes []models.ApplicationNote
	if err := r.db.SelectContext(ctx, &notes, query, applicationID); err != nil {
		return nil, fmt.Errorf("list application notes: %w", err)
	}
	return notes, nil
}

// CountByStatus returns application counts grouped by status, used by the
// metrics collector and the admin dashboard.
func (r *ApplicationRepository) CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM applications GROUP BY status`
	rows := []struct {
		Status models.ApplicationStatus `db:"status"`
		Total  int                      `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	counts := make(map[models.ApplicationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
