package repository

import (
	"context"
	"database/sql"
	"time"

	"voltcore/internal/models"
)

// SessionRepository manages charging session persistence.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert stores a new active session and returns its row id.
func (r *SessionRepository) Insert(ctx context.Context, s *models.Session) (int64, error) {
	const query = `
		INSERT INTO sessions (transaction_id, charge_point_id, connector_id, id_tag, meter_start, started_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		s.TransactionID,
		s.ChargePointID,
		s.ConnectorID,
		s.IdTag,
		s.MeterStart,
		s.StartedAt,
		models.SessionActive,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Complete records the stop reading and marks the session completed.
func (r *SessionRepository) Complete(ctx context.Context, transactionID, meterStop int64, stoppedAt time.Time, reason string) error {
	const query = `
		UPDATE sessions
		SET meter_stop = $2,
		    stopped_at = $3,
		    stop_reason = $4,
		    status = $5,
		    updated_at = NOW()
		WHERE transaction_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, transactionID, meterStop, stoppedAt, reason, models.SessionCompleted)
	return err
}

// FindByTransaction returns the session for a transaction id, or nil.
func (r *SessionRepository) FindByTransaction(ctx context.Context, transactionID int64) (*models.Session, error) {
	const query = `
		SELECT id, transaction_id, charge_point_id, connector_id, id_tag, meter_start, meter_stop, started_at, stopped_at, status, COALESCE(stop_reason, '')
		FROM sessions
		WHERE transaction_id = $1
	`
	var s models.Session
	err := withReadRetry(ctx, func() error {
		row := r.db.QueryRowContext(ctx, query, transactionID)
		return row.Scan(&s.ID, &s.TransactionID, &s.ChargePointID, &s.ConnectorID, &s.IdTag, &s.MeterStart, &s.MeterStop, &s.StartedAt, &s.StoppedAt, &s.Status, &s.StopReason)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns sessions, optionally only active ones, most recent first.
func (r *SessionRepository) List(ctx context.Context, activeOnly bool) ([]models.Session, error) {
	query := `
		SELECT id, transaction_id, charge_point_id, connector_id, id_tag, meter_start, meter_stop, started_at, stopped_at, status, COALESCE(stop_reason, '')
		FROM sessions
	`
	if activeOnly {
		query += ` WHERE status = 'Active'`
	}
	query += ` ORDER BY started_at DESC`

	var result []models.Session
	err := withReadRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		result = result[:0]
		for rows.Next() {
			var s models.Session
			if err := rows.Scan(&s.ID, &s.TransactionID, &s.ChargePointID, &s.ConnectorID, &s.IdTag, &s.MeterStart, &s.MeterStop, &s.StartedAt, &s.StoppedAt, &s.Status, &s.StopReason); err != nil {
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

// MaxTransactionID returns the highest assigned transaction id, for seeding
// the allocator after restart. Zero when no sessions exist.
func (r *SessionRepository) MaxTransactionID(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MAX(transaction_id), 0) FROM sessions`
	var max int64
	err := withReadRetry(ctx, func() error {
		return r.db.QueryRowContext(ctx, query).Scan(&max)
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}
