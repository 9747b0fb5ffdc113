package syncbridge

import (
	"context"
	"time"

	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/rs/zerolog"
)

// Janitor performs periodic housekeeping: probing agent reachability and
// refreshing operational gauges.
type Janitor struct {
	bridge   *Bridge
	store    storage.Store
	interval time.Duration
	log      zerolog.Logger
}

// NewJanitor creates a Janitor.
func NewJanitor(bridge *Bridge, store storage.Store, interval time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		bridge:   bridge,
		store:    store,
		interval: interval,
		log:      log,
	}
}

// Run executes the janitor loop until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Janitor) tick(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := j.bridge.Ping(pctx); err != nil {
		metrics.AgentReachable.Set(0)
		j.log.Debug().Err(err).Msg("janitor: agent unreachable")
	} else {
		metrics.AgentReachable.Set(1)
	}
	cancel()

	size, err := j.store.SizeBytes()
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: read db size failed")
	} else {
		metrics.DBSizeBytes.Set(float64(size))
	}

	entries, err := j.store.CountActivity()
	if err != nil {
		j.log.Warn().Err(err).Msg("janitor: count activity failed")
	} else {
		metrics.ActivityEntries.Set(float64(entries))
	}

	metrics.WorkerQueueDepth.Set(float64(j.bridge.QueueDepth()))
	j.log.Debug().Msg("janitor: tick complete")
}
