package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noren",
			Name:      "override_refresh_total",
			Help:      "Count of override refresh attempts by result.",
		},
		[]string{"result"},
	)

	cacheTierHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noren",
			Name:      "override_cache_tier_hits_total",
			Help:      "Count of override bootstrap hits by cache tier.",
		},
		[]string{"tier"},
	)

	statusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noren",
			Name:      "status_changed_total",
			Help:      "Count of emitted status changes by resulting type.",
		},
		[]string{"type"},
	)

	overrideActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "noren",
			Name:      "override_active",
			Help:      "Whether a manual override is currently active (0 or 1).",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(refreshTotal, cacheTierHits, statusChanged, overrideActive)
	})
}

func IncRefresh(result string) {
	refreshTotal.WithLabelValues(result).Inc()
}

func IncCacheTierHit(tier string) {
	cacheTierHits.WithLabelValues(tier).Inc()
}

func IncStatusChanged(statusType string) {
	statusChanged.WithLabelValues(statusType).Inc()
}

func SetOverrideActive(active bool) {
	if active {
		overrideActive.Set(1)
	} else {
		overrideActive.Set(0)
	}
}
