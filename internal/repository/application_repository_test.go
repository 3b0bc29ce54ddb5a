package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uniosun/tacdra-api/internal/models"
)

func newApplicationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func applicationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tracking_code", "category", "transcript_type", "delivery_method", "status", "amount",
		"is_paid", "paid_at", "purpose", "recipient_name", "recipient_email", "recipient_address",
		"institution_name", "institution_email", "institution_address", "courier_reference",
		"processing_days", "requester_id", "version", "created_at", "updated_at",
	})
}

func TestApplicationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	app := &models.Application{
		TrackingCode:   "TACDRA2508123456",
		Category:       models.CategoryCertificateCopy,
		DeliveryMethod: models.DeliveryPickup,
		Status:         models.StatusPaymentPending,
		Amount:         decimal.NewFromInt(4500),
		RequesterID:    "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), app))
	require.NotEmpty(t, app.ID)
	require.Equal(t, int64(1), app.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateDuplicateTrackingCode(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "applications_tracking_code_key"})

	app := &models.Application{
		TrackingCode:   "TACDRA2508123456",
		Category:       models.CategoryCertificateCopy,
		DeliveryMethod: models.DeliveryPickup,
		Status:         models.StatusPaymentPending,
		RequesterID:    "user-1",
	}
	err := repo.Create(context.Background(), app)
	require.ErrorIs(t, err, ErrDuplicateTrackingCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGetByTrackingCode(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now()
	rows := applicationRows().AddRow(
		"app-1", "TACDRA2508123456", "TRANSCRIPT", "STUDENT_COPY", "PICKUP", "PROCESSING", "3500",
		true, now, nil, nil, nil, nil,
		nil, nil, nil, nil,
		5, "user-1", 2, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tracking_code, category")).
		WithArgs("TACDRA2508123456").
		WillReturnRows(rows)

	app, err := repo.GetByTrackingCode(context.Background(), "TACDRA2508123456")
	require.NoError(t, err)
	require.Equal(t, "app-1", app.ID)
	require.Equal(t, models.StatusProcessing, app.Status)
	require.Equal(t, int64(2), app.Version)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tracking_code, category")).
		WithArgs("TACDRA2508000000").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByTrackingCode(context.Background(), "TACDRA2508000000")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestApplicationRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now()
	rows := applicationRows().AddRow(
		"app-1", "TACDRA2508123456", "TRANSCRIPT", "STUDENT_COPY", "PICKUP", "PROCESSING", "3500",
		true, now, nil, nil, nil, nil,
		nil, nil, nil, nil,
		5, "user-1", 2, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tracking_code, category")).
		WithArgs("PROCESSING").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("PROCESSING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	apps, total, err := repo.List(context.Background(), models.ApplicationFilter{
		Statuses: []models.ApplicationStatus{models.StatusProcessing},
		PaidOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryUpdateStatusVersionGuard(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatus(context.Background(), StatusUpdateParams{
		ID:              "app-1",
		ExpectedVersion: 2,
		Status:          models.StatusRegistrarReview,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// A stale version touches zero rows and surfaces as sql.ErrNoRows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), StatusUpdateParams{
		ID:              "app-1",
		ExpectedVersion: 1,
		Status:          models.StatusRegistrarReview,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestApplicationRepositoryNotes(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_notes")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	author := "reg-1"
	note := &models.ApplicationNote{
		ApplicationID: "app-1",
		AuthorID:      &author,
		Body:          "Status changed from PROCESSING to REGISTRAR_REVIEW",
	}
	require.NoError(t, repo.AppendNote(context.Background(), note))
	require.NotEmpty(t, note.ID)

	rows := sqlmock.NewRows([]string{"id", "application_id", "author_id", "body", "created_at"}).
		AddRow(note.ID, "app-1", author, note.Body, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, author_id, body, created_at")).
		WithArgs("app-1").
		WillReturnRows(rows)

	notes, err := repo.ListNotes(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, note.Body, notes[0].Body)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow("PROCESSING", 3).
		AddRow("REJECTED", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*)")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, counts[models.StatusProcessing])
	require.Equal(t, 1, counts[models.StatusRejected])
	require.NoError(t, mock.ExpectationsWereMet())
}
