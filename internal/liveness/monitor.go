package liveness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voltcore/internal/models"
	"voltcore/internal/registry"
)

// ReachabilityStore persists charge point reachability changes.
type ReachabilityStore interface {
	UpdateReachability(ctx context.Context, chargePointID string, state models.Reachability) error
}

// Monitor periodically demotes charge points that have gone silent. It only
// ever transitions Online to Offline; Online is set by the coordinator on
// inbound traffic.
type Monitor struct {
	registry *registry.Registry
	store    ReachabilityStore
	interval time.Duration
	deadline time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewMonitor returns a monitor sweeping at the given interval and demoting
// charge points silent for longer than deadline.
func NewMonitor(reg *registry.Registry, store ReachabilityStore, interval, deadline time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		registry: reg,
		store:    store,
		interval: interval,
		deadline: deadline,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is cancelled, sweeping on each tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep demotes every charge point whose last activity is past the deadline.
func (m *Monitor) Sweep(ctx context.Context) {
	stale := m.registry.Stale(m.deadline, m.now())
	for chargePointID, conn := range stale {
		m.registry.Unregister(chargePointID, conn)
		_ = conn.Close()

		if err := m.store.UpdateReachability(ctx, chargePointID, models.ReachabilityOffline); err != nil {
			m.logger.Error("failed to persist offline state",
				zap.String("charge_point_id", chargePointID), zap.Error(err))
			continue
		}
		m.logger.Info("charge point demoted to offline",
			zap.String("charge_point_id", chargePointID))
	}
}
