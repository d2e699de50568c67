package repository

import (
	"context"
	"database/sql"
)

// MessageLogRepository keeps an audit trail of raw protocol frames.
type MessageLogRepository struct {
	db *sql.DB
}

// NewMessageLogRepository returns repository.
func NewMessageLogRepository(db *sql.DB) *MessageLogRepository {
	return &MessageLogRepository{db: db}
}

// Save stores one frame. Best effort, callers ignore the error.
func (r *MessageLogRepository) Save(ctx context.Context, chargePointID, direction, action string, payload []byte) error {
	const query = `
		INSERT INTO ocpp_messages (charge_point_id, direction, action, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.ExecContext(ctx, query, chargePointID, direction, action, payload)
	return err
}
