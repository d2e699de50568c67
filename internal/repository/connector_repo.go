package repository

import (
	"context"
	"database/sql"

	"voltcore/internal/models"
)

// ConnectorRepository manages connector status persistence.
type ConnectorRepository struct {
	db *sql.DB
}

// NewConnectorRepository returns repository.
func NewConnectorRepository(db *sql.DB) *ConnectorRepository {
	return &ConnectorRepository{db: db}
}

// Upsert stores the latest reported connector state. Availability is set
// only on first insert; after that it is owned by availability commands.
func (r *ConnectorRepository) Upsert(ctx context.Context, c *models.Connector) error {
	const query = `
		INSERT INTO connectors (charge_point_id, connector_id, status, availability, error_code, info, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (charge_point_id, connector_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			info = EXCLUDED.info,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ChargePointID,
		c.ConnectorID,
		c.Status,
		c.Availability,
		c.ErrorCode,
		c.Info,
	)
	return err
}

// UpdateAvailability changes only the availability state of one connector.
func (r *ConnectorRepository) UpdateAvailability(ctx context.Context, chargePointID string, connectorID int, availability string) error {
	const query = `
		UPDATE connectors
		SET availability = $3, updated_at = NOW()
		WHERE charge_point_id = $1 AND connector_id = $2
	`
	_, err := r.db.ExecContext(ctx, query, chargePointID, connectorID, availability)
	return err
}

// ListByChargePoint returns connectors for one charge point.
func (r *ConnectorRepository) ListByChargePoint(ctx context.Context, chargePointID string) ([]models.Connector, error) {
	const query = `
		SELECT charge_point_id, connector_id, status, availability, error_code, info, updated_at
		FROM connectors
		WHERE charge_point_id = $1
		ORDER BY connector_id
	`
	var result []models.Connector
	err := withReadRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query, chargePointID)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var c models.Connector
			if err := rows.Scan(&c.ChargePointID, &c.ConnectorID, &c.Status, &c.Availability, &c.ErrorCode, &c.Info, &c.UpdatedAt); err != nil {
				return err
			}
			result = append(result, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
