package repository

import (
	"context"
	"database/sql"

	"voltcore/internal/models"
)

// DataTransferRepository stores vendor pass-through payloads uninterpreted.
type DataTransferRepository struct {
	db *sql.DB
}

// NewDataTransferRepository returns repository.
func NewDataTransferRepository(db *sql.DB) *DataTransferRepository {
	return &DataTransferRepository{db: db}
}

// Save stores one data transfer payload.
func (r *DataTransferRepository) Save(ctx context.Context, dt *models.DataTransfer) error {
	const query = `
		INSERT INTO data_transfers (charge_point_id, vendor_id, message_id, data, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, dt.ChargePointID, dt.VendorID, dt.MessageID, dt.Data, dt.ReceivedAt)
	return err
}
