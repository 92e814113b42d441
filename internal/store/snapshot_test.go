package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
)

func snapshotColumns() []string {
	return []string{
		"id", "status", "state", "limit_amount", "owner_phone", "close_phone",
		"reason_error", "name", "surname", "fathers_name",
	}
}

func TestSnapshotGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT a.id, a.status").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(snapshotColumns()).
			AddRow("app-1", "scoring", "active", 1200.0, "+998901112233", "+998904445566",
				nil, "Anvar", "Karimov", "Olimovich"))

	store := NewSnapshotStore(db, logger.NewTestLogger(t))
	snap, err := store.Get(context.Background(), "app-1")
	require.NoError(t, err)

	assert.Equal(t, "app-1", snap.ID)
	assert.Equal(t, "scoring", snap.Status)
	assert.Equal(t, 1200.0, snap.LimitAmount)
	assert.Equal(t, "", snap.ReasonError)

	info := snap.ClientInfo()
	assert.Equal(t, "Anvar", info.Name)
	assert.Equal(t, "+998901112233", info.OwnerPhone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT a.id, a.status").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	store := NewSnapshotStore(db, logger.NewTestLogger(t))
	_, err = store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, brokererrors.IsKind(err, brokererrors.KindNotFound))

	be := brokererrors.From(err)
	assert.Equal(t, "Application not found", be.Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotGetNullFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT a.id, a.status").
		WithArgs("app-2").
		WillReturnRows(sqlmock.NewRows(snapshotColumns()).
			AddRow("app-2", "scoring", "failed", nil, nil, nil,
				"scoring declined", nil, nil, nil))

	store := NewSnapshotStore(db, logger.NewTestLogger(t))
	snap, err := store.Get(context.Background(), "app-2")
	require.NoError(t, err)

	assert.Equal(t, 0.0, snap.LimitAmount)
	assert.Equal(t, "failed", snap.State)
	assert.Equal(t, "scoring declined", snap.ReasonError)
	assert.Empty(t, snap.OwnerPhone)

	assert.NoError(t, mock.ExpectationsWereMet())
}
