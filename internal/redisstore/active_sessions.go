package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the dashboard-facing mirror of an active transaction.
type ActiveSession struct {
	TransactionID int64     `json:"transaction_id"`
	ChargePointID string    `json:"charge_point_id"`
	ConnectorID   int       `json:"connector_id"`
	IdTag         string    `json:"id_tag"`
	StartedAt     time.Time `json:"started_at"`
}

// Store mirrors active sessions into redis for cheap dashboard reads. The
// mirror is advisory; the ledger and Postgres stay authoritative.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(transactionID int64) string {
	return fmt.Sprintf("sessions:active:%d", transactionID)
}

// Save caches session.
func (s *Store) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.TransactionID), data, s.ttl).Err()
}

// Get returns cached session.
func (s *Store) Get(ctx context.Context, transactionID int64) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(transactionID)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes cached session.
func (s *Store) Delete(ctx context.Context, transactionID int64) error {
	return s.client.Del(ctx, s.key(transactionID)).Err()
}
