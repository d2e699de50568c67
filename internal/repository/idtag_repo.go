package repository

import (
	"context"
	"database/sql"

	"voltcore/internal/models"
)

// IdTagRepository looks up authorization credentials.
type IdTagRepository struct {
	db *sql.DB
}

// NewIdTagRepository returns repository.
func NewIdTagRepository(db *sql.DB) *IdTagRepository {
	return &IdTagRepository{db: db}
}

// Find returns the tag record, or nil when the tag is unknown.
func (r *IdTagRepository) Find(ctx context.Context, tag string) (*models.IdTag, error) {
	const query = `
		SELECT tag, status, expiry_at, COALESCE(parent_tag, '')
		FROM id_tags
		WHERE tag = $1
	`
	var record models.IdTag
	err := withReadRetry(ctx, func() error {
		row := r.db.QueryRowContext(ctx, query, tag)
		return row.Scan(&record.Tag, &record.Status, &record.ExpiryAt, &record.ParentTag)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
