// Package poller drives the resolution loop on a fixed cadence. The core
// stays free of timer mechanics; this is the only place a ticker lives.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"noren/internal/model"
	"noren/internal/override"
	"noren/internal/resolver"
)

// DefaultInterval matches the override refresh window.
const DefaultInterval = 30 * time.Second

// Poller ticks the override store and resolver.
type Poller struct {
	interval time.Duration
	store    *override.Store
	resolver *resolver.Resolver
	logger   *zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a poller. interval <= 0 uses DefaultInterval.
func New(interval time.Duration, store *override.Store, res *resolver.Resolver, logger *zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		store:    store,
		resolver: res,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the tick loop until the context is cancelled or Stop is
// called. An immediate first tick resolves the seeded state before the
// first interval elapses.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info().Dur("interval", p.interval).Msg("status poller started")

	p.tick(ctx, false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("status poller stopped by context")
			return
		case <-p.stopCh:
			p.logger.Info().Msg("status poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx, false)
		}
	}
}

// Stop halts the loop.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.running {
		p.running = false
		close(p.stopCh)
	}
	p.mu.Unlock()
}

// RunNow forces an immediate refresh and resolution, the equivalent of a
// page becoming visible again.
func (p *Poller) RunNow(ctx context.Context) model.ResolvedStatus {
	return p.tick(ctx, true)
}

// IsRunning reports whether the loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) tick(ctx context.Context, force bool) model.ResolvedStatus {
	if _, err := p.store.Refresh(ctx, force); err != nil {
		// Refresh absorbs its own failures; anything surfacing here is
		// unexpected but never fatal to the loop.
		p.logger.Error().Err(err).Msg("refresh error")
	}
	return p.resolver.Resolve(time.Now())
}
