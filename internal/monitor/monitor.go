package monitor

import (
	"context"
	"time"

	"github.com/italolelis/segment_coordinator/internal/logctx"
	"github.com/italolelis/segment_coordinator/internal/telemetry"
)

// LeaseCounter counts live lease records in the shared store.
type LeaseCounter interface {
	CountActiveLeases(ctx context.Context, pattern string) (int64, error)
}

// PoolStats reports the subscriber pool occupancy.
type PoolStats interface {
	IdleSize() int
}

// Monitor periodically samples coordination health gauges: how many
// segment leases are currently held and how many subscriber
// connections sit idle in the pool.
type Monitor struct {
	leases      LeaseCounter
	pool        PoolStats
	lockPattern string
	interval    time.Duration
	telemetry   *telemetry.Telemetry
}

func New(leases LeaseCounter, pool PoolStats, lockPattern string, interval time.Duration, tel *telemetry.Telemetry) *Monitor {
	return &Monitor{
		leases:      leases,
		pool:        pool,
		lockPattern: lockPattern,
		interval:    interval,
		telemetry:   tel,
	}
}

// Run samples gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("monitor shutting down")

				return
			case <-ticker.C:
				m.sample(ctx)
			}
		}
	}()
}

func (m *Monitor) sample(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	active, err := m.leases.CountActiveLeases(ctx, m.lockPattern)
	if err != nil {
		logger.Error("failed to count active leases", "err", err)
	} else {
		m.telemetry.SetActiveLeases(active)
	}

	m.telemetry.SetSubscriberPoolIdle(int64(m.pool.IdleSize()))
}
