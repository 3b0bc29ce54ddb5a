package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uniosun/tacdra-api/internal/models"
)

func newPaymentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "application_id", "amount", "method", "status", "payment_reference",
		"transaction_id", "gateway_response", "paid_at", "created_at", "updated_at",
	})
}

func TestPaymentRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payment := &models.Payment{
		ApplicationID:    "app-1",
		Amount:           decimal.NewFromInt(3500),
		Method:           models.PaymentMethodRemita,
		PaymentReference: "280000000001",
		TransactionID:    "UNIOSUN_1_ABC",
	}
	require.NoError(t, repo.Create(context.Background(), payment))
	require.NotEmpty(t, payment.ID)
	require.Equal(t, models.PaymentStatusPending, payment.Status)

	now := time.Now()
	rows := paymentRows().AddRow(
		payment.ID, "app-1", "3500", "REMITA", "PENDING", "280000000001",
		"UNIOSUN_1_ABC", []byte(`{}`), nil, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, amount")).
		WithArgs("280000000001").
		WillReturnRows(rows)

	found, err := repo.GetByReference(context.Background(), "280000000001")
	require.NoError(t, err)
	require.Equal(t, payment.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryLatestSuccessful(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	now := time.Now()
	rows := paymentRows().AddRow(
		"pay-2", "app-1", "3500", "REMITA", "SUCCESS", "280000000002",
		"UNIOSUN_2_DEF", []byte(`{}`), now, now, now,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, amount")).
		WithArgs("app-1", string(models.PaymentStatusSuccess)).
		WillReturnRows(rows)

	payment, err := repo.LatestSuccessful(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, "pay-2", payment.ID)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, application_id, amount")).
		WithArgs("app-2", string(models.PaymentStatusSuccess)).
		WillReturnError(sql.ErrNoRows)
	_, err = repo.LatestSuccessful(context.Background(), "app-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPaymentRepositoryUpdateOutcome(t *testing.T) {
	db, mock, cleanup := newPaymentRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateOutcome(context.Background(), "pay-1", models.PaymentStatusSuccess, "UNIOSUN_1_ABC", []byte(`{"status":"01"}`), &now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
