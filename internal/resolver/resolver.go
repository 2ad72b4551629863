// Package resolver combines the automatic schedule with the override
// store to produce the one status visitors see right now.
package resolver

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"noren/internal/events"
	"noren/internal/metrics"
	"noren/internal/model"
	"noren/internal/override"
	"noren/internal/schedule"
)

// DisplaySink receives each newly resolved status for rendering.
type DisplaySink interface {
	Show(status model.ResolvedStatus)
}

// Resolver produces the current ResolvedStatus and owns the previously
// emitted one for de-duplication.
type Resolver struct {
	store  *override.Store
	config model.WeeklyScheduleConfig
	sink   DisplaySink
	bus    *events.Bus
	logger *zerolog.Logger

	mu   sync.Mutex
	last *model.ResolvedStatus
}

// New wires a resolver. sink and bus may be nil when the caller only wants
// the return value of Resolve.
func New(store *override.Store, config model.WeeklyScheduleConfig, sink DisplaySink, bus *events.Bus, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		config: config,
		sink:   sink,
		bus:    bus,
		logger: logger,
	}
}

// Resolve computes the status at now. When it differs from the last
// emitted status by (type, message, isManual), the sink is updated and a
// change event is broadcast; otherwise the result is suppressed.
func (r *Resolver) Resolve(now time.Time) model.ResolvedStatus {
	status := r.compute(now)

	r.mu.Lock()
	if r.last != nil && r.last.SameDisplay(status) {
		r.mu.Unlock()
		return status
	}
	r.last = &status
	r.mu.Unlock()

	metrics.IncStatusChanged(string(status.Type))
	r.logger.Info().
		Str("type", string(status.Type)).
		Str("message", status.Message).
		Bool("manual", status.IsManual).
		Msg("status changed")

	if r.sink != nil {
		r.sink.Show(status)
	}
	if r.bus != nil {
		r.bus.Publish(events.StatusChange{
			Status:    status,
			Timestamp: now,
			Manual:    status.IsManual,
		})
	}
	return status
}

// Last returns the most recently emitted status, or nil before the first
// resolution.
func (r *Resolver) Last() *model.ResolvedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Resolver) compute(now time.Time) model.ResolvedStatus {
	rec := r.store.Current()
	if rec == nil {
		return schedule.Compute(now, r.config)
	}

	status, ok := fromOverride(rec)
	if !ok {
		r.logger.Warn().
			Str("id", rec.ID).
			Str("kind", string(rec.Kind)).
			Msg("unrecognized override kind, falling back to schedule")
		return schedule.Compute(now, r.config)
	}
	return status
}

// fromOverride maps an override record to a displayed status. Unknown
// kinds report !ok so the caller can fall back.
func fromOverride(rec *model.OverrideRecord) (model.ResolvedStatus, bool) {
	status := model.ResolvedStatus{
		IsManual:      true,
		OverrideID:    rec.ID,
		Reason:        rec.Reason,
		CustomMessage: rec.CustomMessage,
		CustomHours:   rec.CustomHours,
		EndTime:       rec.EndTime,
	}

	switch rec.Kind {
	case model.OverrideClosed:
		status.Type = model.StatusEmergencyClosed
		status.Message = "closed unexpectedly"
		if rec.CustomMessage != "" {
			status.Message = rec.CustomMessage
		}
		status.Detail = rec.Reason
	case model.OverrideShortHours:
		status.Type = model.StatusShortHours
		status.Message = "shortened hours"
		status.Detail = rec.CustomHours
	case model.OverrideSpecial:
		status.Type = model.StatusSpecial
		status.Message = "special hours"
		status.Detail = rec.CustomMessage
	default:
		return model.ResolvedStatus{}, false
	}
	return status, true
}
