package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
)

// Poller drives all configured entities on one shared ticker. Each tick
// fans the updates out over a bounded worker pool so one slow league
// cannot starve the rest, then waits for the whole batch.
type Poller struct {
	entities []*Entity
	interval time.Duration
	logger   *logging.Logger
	pool     *ants.Pool
	onUpdate func(Snapshot)
}

type PollerConfig struct {
	Entities []*Entity
	Interval time.Duration
	Workers  int
	Logger   *logging.Logger

	// OnUpdate receives every published snapshot, including unchanged
	// ones. Optional.
	OnUpdate func(Snapshot)
}

func NewPoller(cfg PollerConfig) (*Poller, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 4
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Poller{
		entities: cfg.Entities,
		interval: interval,
		logger:   logger,
		pool:     pool,
		onUpdate: cfg.OnUpdate,
	}, nil
}

// Run polls immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	var workers sync.WaitGroup
	for _, entity := range p.entities {
		entity := entity
		workers.Add(1)
		if err := p.pool.Submit(func() {
			defer workers.Done()

			start := time.Now()
			snap := entity.Update(ctx)
			p.logger.InfoContext(ctx, "matchup updated",
				"entity_id", snap.EntityID,
				"state", snap.State,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			if p.onUpdate != nil {
				p.onUpdate(snap)
			}
		}); err != nil {
			workers.Done()
			p.logger.ErrorContext(ctx, "submit update to worker pool", "entity_id", entity.EntityID(), "error", err)
		}
	}
	workers.Wait()
}

// Close releases the worker pool. Call after Run has returned.
func (p *Poller) Close() {
	p.pool.Release()
}
