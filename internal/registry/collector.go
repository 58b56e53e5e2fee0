package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
	"github.com/MarkPereverzov/Memberly/internal/infrastructure/metrics"
)

// Collector periodically refreshes target member counts. At most one sweep
// runs at a time; a tick that arrives mid-sweep is skipped, never queued.
type Collector struct {
	registry *Registry
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	running  atomic.Bool
	inFlight atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewCollector creates the member-count refresh worker
func NewCollector(registry *Registry, cfg *config.CollectorConfig, logger zerolog.Logger, m *metrics.Metrics) *Collector {
	return &Collector{
		registry: registry,
		interval: cfg.Interval,
		logger:   logger.With().Str("component", "member_collector").Logger(),
		metrics:  m,
	}
}

// Start launches the periodic sweep loop. Idempotent.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx)

	c.logger.Info().Dur("interval", c.interval).Msg("member count collector started")
}

// Stop cancels the loop and waits for a sweep in flight to finish. Idempotent.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.CompareAndSwap(true, false) {
		return
	}

	c.cancel()
	<-c.done

	c.logger.Info().Msg("member count collector stopped")
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep runs one refresh pass, skipping if another is still in flight.
func (c *Collector) sweep(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Warn().Msg("previous sweep still running, skipping tick")
		return
	}
	defer c.inFlight.Store(false)

	if c.metrics != nil {
		c.metrics.MemberRefreshSweeps.Inc()
	}

	c.registry.RefreshMemberCounts(ctx)
}
