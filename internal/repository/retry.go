package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const readRetryBackoff = 100 * time.Millisecond

// withReadRetry runs an idempotent read, retrying once after a short backoff.
// Writes never go through here. No rows is a result, not a failure.
func withReadRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, sql.ErrNoRows) || ctx.Err() != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(readRetryBackoff):
	}
	return fn()
}
