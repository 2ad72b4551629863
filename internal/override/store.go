// Package override maintains the single authoritative "active override or
// none". State is seeded from a pre-rendered snapshot or the persistent
// key/value store and kept current by rate-limited refreshes against the
// Content Service. Every failure in this pipeline is absorbed; the worst
// outcome is falling back to the automatic schedule.
package override

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"noren/internal/kv"
	"noren/internal/metrics"
	"noren/internal/model"
)

// persistKey is the key/value entry holding the active override between
// sessions. Exclusively owned by this package.
const persistKey = "override:active"

// DefaultRefreshInterval is the minimum spacing between unforced refreshes.
const DefaultRefreshInterval = 30 * time.Second

// FailurePolicy decides what happens to an active override when a refresh
// fails.
type FailurePolicy string

const (
	// PolicyHold retains the last-known-good override across failed
	// refreshes until its own end time passes or a successful refresh
	// replaces it.
	PolicyHold FailurePolicy = "hold"
	// PolicyClear reverts to the automatic schedule on the first failed
	// refresh. This reproduces the legacy site behavior.
	PolicyClear FailurePolicy = "clear"
)

// Source is what the store needs from the Content Service adapter.
type Source interface {
	ListOverrideCandidates(ctx context.Context) ([]model.OverrideRecord, error)
	CreateOverride(ctx context.Context, rec model.OverrideRecord) (string, error)
	DeleteOverride(ctx context.Context, id string) error
}

// Options configures a Store.
type Options struct {
	// SnapshotPath is the pre-rendered snapshot document. Empty disables
	// the snapshot tier.
	SnapshotPath string
	// RefreshInterval caps unforced refresh frequency. Defaults to
	// DefaultRefreshInterval.
	RefreshInterval time.Duration
	// Policy defaults to PolicyHold.
	Policy FailurePolicy
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store owns the current override and its persistence.
type Store struct {
	source       Source
	kv           kv.Store
	logger       *zerolog.Logger
	snapshotPath string
	policy       FailurePolicy
	limiter      *rate.Limiter
	now          func() time.Time

	mu         sync.Mutex
	current    *model.OverrideRecord
	refreshing bool
}

// NewStore constructs a store. It performs no I/O; call Bootstrap before
// the first resolution.
func NewStore(source Source, store kv.Store, logger *zerolog.Logger, opts Options) *Store {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Policy == "" {
		opts.Policy = PolicyHold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		source:       source,
		kv:           store,
		logger:       logger,
		snapshotPath: opts.SnapshotPath,
		policy:       opts.Policy,
		limiter:      rate.NewLimiter(rate.Every(opts.RefreshInterval), 1),
		now:          opts.Now,
	}
}

// Current returns the active override, or nil when the automatic schedule
// applies.
func (s *Store) Current() *model.OverrideRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Bootstrap seeds the store before the first live refresh, trying tiers in
// order: fresh snapshot, persisted entry, absent. First available wins to
// minimize time-to-first-paint.
func (s *Store) Bootstrap(ctx context.Context) {
	now := s.now()

	if s.snapshotPath != "" {
		snap, err := LoadSnapshot(s.snapshotPath)
		if err == nil && snap.Fresh(now) {
			selected := SelectActive(snap.Contents, now)
			s.setCurrent(selected)
			metrics.IncCacheTierHit("snapshot")
			s.logger.Info().
				Bool("active", selected != nil).
				Time("fetched_at", snap.FetchedAt).
				Msg("override seeded from snapshot")
			return
		}
		if err != nil {
			s.logger.Debug().Err(err).Msg("snapshot unavailable")
		}
	}

	raw, ok, err := s.kv.Get(ctx, persistKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("persisted override read failed, treating as miss")
	}
	if ok && err == nil {
		var rec model.OverrideRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn().Err(err).Msg("persisted override unreadable, dropping")
			_ = s.kv.Remove(ctx, persistKey)
		} else if rec.EndTime != nil && rec.EndTime.Before(now) {
			s.logger.Info().Str("id", rec.ID).Msg("persisted override expired, dropping")
			_ = s.kv.Remove(ctx, persistKey)
		} else {
			s.setCurrent(&rec)
			metrics.IncCacheTierHit("persistent")
			s.logger.Info().Str("id", rec.ID).Msg("override seeded from persistent store")
			return
		}
	}

	metrics.IncCacheTierHit("none")
}

// Refresh fetches candidates from the Content Service and applies the
// selection. Unforced calls inside the refresh interval are no-ops, and a
// refresh that starts while another is outstanding is coalesced. The
// returned bool reports whether the visible override state changed.
func (s *Store) Refresh(ctx context.Context, force bool) (bool, error) {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return false, nil
	}
	allowed := s.limiter.Allow()
	if !force && !allowed {
		s.mu.Unlock()
		return false, nil
	}
	s.refreshing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	candidates, err := s.source.ListOverrideCandidates(ctx)
	now := s.now()
	if err != nil {
		metrics.IncRefresh("error")
		s.logger.Warn().Err(err).Msg("override refresh failed")
		return s.applyFailure(ctx, now), nil
	}

	metrics.IncRefresh("ok")
	selected := SelectActive(candidates, now)
	changed := s.apply(ctx, selected)

	if s.snapshotPath != "" {
		snap := Snapshot{Contents: candidates, FetchedAt: now}
		if err := WriteSnapshot(s.snapshotPath, snap); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot write failed")
		}
	}
	return changed, nil
}

// Set creates an override in the Content Service and forces a refresh so
// it takes effect immediately. Administrative surface, not part of the
// steady-state loop.
func (s *Store) Set(ctx context.Context, rec model.OverrideRecord) (string, error) {
	id, err := s.source.CreateOverride(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("create override: %w", err)
	}
	if _, err := s.Refresh(ctx, true); err != nil {
		return id, err
	}
	return id, nil
}

// Clear removes the active override. The persisted entry and in-memory
// state are dropped first so an intended clear can never be resurrected
// from cache, even when the Content Service is unreachable for the delete.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	metrics.SetOverrideActive(false)

	if err := s.kv.Remove(ctx, persistKey); err != nil {
		s.logger.Warn().Err(err).Msg("persisted override remove failed")
	}

	if cur == nil {
		return nil
	}
	if err := s.source.DeleteOverride(ctx, cur.ID); err != nil {
		return fmt.Errorf("delete override %s: %w", cur.ID, err)
	}
	_, err := s.Refresh(ctx, true)
	return err
}

// apply installs the selection result, persists it, and reports whether
// the visible state changed (by id or absence).
func (s *Store) apply(ctx context.Context, selected *model.OverrideRecord) bool {
	s.mu.Lock()
	prev := s.current
	s.current = selected
	s.mu.Unlock()

	changed := !sameRecord(prev, selected)
	metrics.SetOverrideActive(selected != nil)

	if selected == nil {
		if err := s.kv.Remove(ctx, persistKey); err != nil {
			s.logger.Warn().Err(err).Msg("persisted override remove failed")
		}
		return changed
	}

	data, err := json.Marshal(selected)
	if err == nil {
		if err := s.kv.Set(ctx, persistKey, string(data)); err != nil {
			s.logger.Warn().Err(err).Msg("persisted override write failed")
		}
	}
	return changed
}

// applyFailure applies the configured failure policy after an unreachable
// or malformed response.
func (s *Store) applyFailure(ctx context.Context, now time.Time) bool {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	switch s.policy {
	case PolicyClear:
		if cur == nil {
			return false
		}
		s.logger.Warn().Str("id", cur.ID).Msg("clearing override after failed refresh")
		return s.apply(ctx, nil)
	default: // PolicyHold
		if cur != nil && cur.EndTime != nil && cur.EndTime.Before(now) {
			s.logger.Info().Str("id", cur.ID).Msg("held override expired")
			return s.apply(ctx, nil)
		}
		return false
	}
}

func (s *Store) setCurrent(rec *model.OverrideRecord) {
	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()
	metrics.SetOverrideActive(rec != nil)
}

func sameRecord(a, b *model.OverrideRecord) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
