package store

import (
	"context"
	"database/sql"
	"fmt"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/models"
)

// ProgressStore mirrors orchestration progress and created products in the
// broker's own database. Rows here are non-authoritative bookkeeping: the
// lending backend remains the source of truth.
type ProgressStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewProgressStore(db *sql.DB, log logger.Logger) *ProgressStore {
	return &ProgressStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "progress_store"}),
	}
}

// UpsertProgress creates the progress row for an application if it does not
// exist yet. Repeated calls are no-ops, which keeps scoring idempotent.
func (s *ProgressStore) UpsertProgress(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO application_progress (app_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (app_id) DO NOTHING`, appID)
	if err != nil {
		return brokererrors.NewInternal(fmt.Errorf("failed to upsert progress for %s: %w", appID, err))
	}
	return nil
}

// SetPeriod records the instalment period chosen for an application.
func (s *ProgressStore) SetPeriod(ctx context.Context, appID, period string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE application_progress SET period = $2, updated_at = NOW()
		WHERE app_id = $1`, appID, period)
	if err != nil {
		return brokererrors.NewInternal(fmt.Errorf("failed to set period for %s: %w", appID, err))
	}
	return nil
}

// GetProgress loads the progress row for one application.
func (s *ProgressStore) GetProgress(ctx context.Context, appID string) (*models.ProgressRow, error) {
	var row models.ProgressRow
	var period sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT app_id, period, created_at, updated_at
		FROM application_progress WHERE app_id = $1`, appID).
		Scan(&row.AppID, &period, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to read progress for %s: %w", appID, err))
	}
	row.Period = period.String
	return &row, nil
}

// SaveProduct mirrors one upstream-created product.
func (s *ProgressStore) SaveProduct(ctx context.Context, appID, productID, name, amount string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products_mirror (app_id, product_id, name, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (product_id) DO UPDATE SET
			name = EXCLUDED.name, amount = EXCLUDED.amount, updated_at = NOW()`,
		appID, productID, name, amount)
	if err != nil {
		return brokererrors.NewInternal(fmt.Errorf("failed to save product %s: %w", productID, err))
	}
	return nil
}

// ListProducts returns the mirrored products for one application.
func (s *ProgressStore) ListProducts(ctx context.Context, appID string) ([]models.ProductRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, product_id, name, amount, created_at, updated_at
		FROM products_mirror WHERE app_id = $1 ORDER BY created_at`, appID)
	if err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to list products for %s: %w", appID, err))
	}
	defer rows.Close()

	var products []models.ProductRow
	for rows.Next() {
		var p models.ProductRow
		if err := rows.Scan(&p.AppID, &p.ProductID, &p.Name, &p.Amount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, brokererrors.NewInternal(fmt.Errorf("failed to scan product row: %w", err))
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("product rows iteration failed: %w", err))
	}
	return products, nil
}

// DeleteProducts removes all mirrored products for an application, after the
// upstream delete succeeded.
func (s *ProgressStore) DeleteProducts(ctx context.Context, appID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products_mirror WHERE app_id = $1`, appID)
	if err != nil {
		return brokererrors.NewInternal(fmt.Errorf("failed to delete products for %s: %w", appID, err))
	}
	return nil
}
