package repository

import (
	"context"
	"database/sql"
	"time"

	"voltcore/internal/models"
)

// ChargePointRepository manages charge point persistence.
type ChargePointRepository struct {
	db *sql.DB
}

// NewChargePointRepository returns repository.
func NewChargePointRepository(db *sql.DB) *ChargePointRepository {
	return &ChargePointRepository{db: db}
}

// Upsert stores or updates charge point metadata reported on boot.
func (r *ChargePointRepository) Upsert(ctx context.Context, cp *models.ChargePoint) error {
	const query = `
		INSERT INTO charge_points (id, vendor, model, serial_number, firmware_version, reachability, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			vendor = EXCLUDED.vendor,
			model = EXCLUDED.model,
			serial_number = EXCLUDED.serial_number,
			firmware_version = EXCLUDED.firmware_version,
			reachability = EXCLUDED.reachability,
			last_seen = EXCLUDED.last_seen,
			updated_at = NOW()
	`
	if cp.LastSeen.IsZero() {
		cp.LastSeen = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		cp.ID,
		cp.Vendor,
		cp.Model,
		cp.SerialNumber,
		cp.FirmwareVersion,
		cp.Reachability,
		cp.LastSeen,
	)
	return err
}

// UpdateReachability changes the stored reachability state.
func (r *ChargePointRepository) UpdateReachability(ctx context.Context, chargePointID string, state models.Reachability) error {
	const query = `
		UPDATE charge_points
		SET reachability = $2,
		    last_seen = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, chargePointID, state)
	return err
}

// Find returns a charge point by id, or nil when absent.
func (r *ChargePointRepository) Find(ctx context.Context, chargePointID string) (*models.ChargePoint, error) {
	const query = `
		SELECT id, vendor, model, serial_number, firmware_version, reachability, last_seen, created_at
		FROM charge_points
		WHERE id = $1
	`
	var cp models.ChargePoint
	err := withReadRetry(ctx, func() error {
		row := r.db.QueryRowContext(ctx, query, chargePointID)
		return row.Scan(&cp.ID, &cp.Vendor, &cp.Model, &cp.SerialNumber, &cp.FirmwareVersion, &cp.Reachability, &cp.LastSeen, &cp.CreatedAt)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// List returns all charge points ordered by creation time.
func (r *ChargePointRepository) List(ctx context.Context) ([]models.ChargePoint, error) {
	const query = `
		SELECT id, vendor, model, serial_number, firmware_version, reachability, last_seen, created_at
		FROM charge_points
		ORDER BY created_at DESC
	`
	var result []models.ChargePoint
	err := withReadRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var cp models.ChargePoint
			if err := rows.Scan(&cp.ID, &cp.Vendor, &cp.Model, &cp.SerialNumber, &cp.FirmwareVersion, &cp.Reachability, &cp.LastSeen, &cp.CreatedAt); err != nil {
				return err
			}
			result = append(result, cp)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
