package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ican-broker/internal/common/logger"
)

func TestUpsertProgressIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO application_progress").
		WithArgs("app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO application_progress").
		WithArgs("app-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewProgressStore(db, logger.NewTestLogger(t))
	require.NoError(t, store.UpsertProgress(context.Background(), "app-1"))
	require.NoError(t, store.UpsertProgress(context.Background(), "app-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPeriod(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE application_progress SET period").
		WithArgs("app-1", "12").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewProgressStore(db, logger.NewTestLogger(t))
	require.NoError(t, store.SetPeriod(context.Background(), "app-1", "12"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProgressMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT app_id, period").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"app_id", "period", "created_at", "updated_at"}))

	store := NewProgressStore(db, logger.NewTestLogger(t))
	row, err := store.GetProgress(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, row)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductMirrorRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()

	mock.ExpectExec("INSERT INTO products_mirror").
		WithArgs("app-1", "prod-9", "Phone", "450.00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT app_id, product_id, name, amount").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"app_id", "product_id", "name", "amount", "created_at", "updated_at"}).
			AddRow("app-1", "prod-9", "Phone", "450.00", now, now))
	mock.ExpectExec("DELETE FROM products_mirror").
		WithArgs("app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewProgressStore(db, logger.NewTestLogger(t))
	ctx := context.Background()

	require.NoError(t, store.SaveProduct(ctx, "app-1", "prod-9", "Phone", "450.00"))

	products, err := store.ListProducts(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "prod-9", products[0].ProductID)
	assert.Equal(t, "Phone", products[0].Name)
	assert.Equal(t, "450.00", products[0].Amount)

	require.NoError(t, store.DeleteProducts(ctx, "app-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
