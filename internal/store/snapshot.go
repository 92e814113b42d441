// Package store holds the broker's persistence: the read-only application
// snapshot from the secondary database, the local progress mirror, and the
// Redis per-application lock.
package store

import (
	"context"
	"database/sql"
	"fmt"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/models"
)

const snapshotQuery = `
SELECT a.id, a.status, a.state, a.limit_amount, a.owner_phone, a.close_phone,
       a.reason_error, c.name, c.surname, c.fathers_name
FROM applications a
JOIN client_user c ON a."user" = c.id
WHERE a.id = $1`

// SnapshotStore reads authoritative application records from the secondary
// database. It never writes.
type SnapshotStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSnapshotStore(db *sql.DB, log logger.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "snapshot_store"}),
	}
}

// Get loads the snapshot for one application. A missing row is reported as
// the not-found error so no upstream call happens for unknown applications.
func (s *SnapshotStore) Get(ctx context.Context, appID string) (*models.ApplicationSnapshot, error) {
	var (
		snap        models.ApplicationSnapshot
		limitAmount sql.NullFloat64
		ownerPhone  sql.NullString
		closePhone  sql.NullString
		reasonError sql.NullString
		name        sql.NullString
		surname     sql.NullString
		fathersName sql.NullString
	)

	err := s.db.QueryRowContext(ctx, snapshotQuery, appID).Scan(
		&snap.ID, &snap.Status, &snap.State, &limitAmount,
		&ownerPhone, &closePhone, &reasonError,
		&name, &surname, &fathersName,
	)
	if err == sql.ErrNoRows {
		return nil, brokererrors.NewNotFound()
	}
	if err != nil {
		s.logger.Error("snapshot query failed", map[string]interface{}{
			"app_id": appID,
			"error":  err.Error(),
		})
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to read application %s: %w", appID, err))
	}

	snap.LimitAmount = limitAmount.Float64
	snap.OwnerPhone = ownerPhone.String
	snap.ClosePhone = closePhone.String
	snap.ReasonError = reasonError.String
	snap.Name = name.String
	snap.Surname = surname.String
	snap.FathersName = fathersName.String

	return &snap, nil
}
