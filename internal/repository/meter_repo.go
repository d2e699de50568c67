package repository

import (
	"context"
	"database/sql"

	"voltcore/internal/models"
)

// MeterValueRepository appends meter samples. Samples are never mutated after
// insertion.
type MeterValueRepository struct {
	db *sql.DB
}

// NewMeterValueRepository returns repository.
func NewMeterValueRepository(db *sql.DB) *MeterValueRepository {
	return &MeterValueRepository{db: db}
}

// Insert stores one sample. SessionID may be nil for orphaned samples.
func (r *MeterValueRepository) Insert(ctx context.Context, sample *models.MeterSample) error {
	const query = `
		INSERT INTO meter_values (session_id, charge_point_id, connector_id, timestamp, value, measurand, unit, orphaned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		sample.SessionID,
		sample.ChargePointID,
		sample.ConnectorID,
		sample.Timestamp,
		sample.Value,
		sample.Measurand,
		sample.Unit,
		sample.Orphaned,
	)
	return err
}

// ListBySession returns samples attributed to one session.
func (r *MeterValueRepository) ListBySession(ctx context.Context, sessionID int64) ([]models.MeterSample, error) {
	const query = `
		SELECT id, session_id, charge_point_id, connector_id, timestamp, value, measurand, unit, orphaned
		FROM meter_values
		WHERE session_id = $1
		ORDER BY timestamp
	`
	var result []models.MeterSample
	err := withReadRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query, sessionID)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var s models.MeterSample
			if err := rows.Scan(&s.ID, &s.SessionID, &s.ChargePointID, &s.ConnectorID, &s.Timestamp, &s.Value, &s.Measurand, &s.Unit, &s.Orphaned); err != nil {
				return err
			}
			result = append(result, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
