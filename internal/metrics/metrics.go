// Package metrics exposes prometheus collectors for zone lookups.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for a zone source. A nil *Metrics
// records nothing.
type Metrics struct {
	// Zones decoded from the stream, by result ("ok", "error")
	ZoneDecodes *prometheus.CounterVec

	// Zone lookups answered from the decode cache or not
	ZoneCacheHits   prometheus.Counter
	ZoneCacheMisses prometheus.Counter

	// Host zone guesses by result ("match", "none", "cached")
	HostMatches *prometheus.CounterVec

	// Duration of a full host zone match
	MatchDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ZoneDecodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tzdb_zone_decodes_total",
			Help: "Total zone decodes by result",
		}, []string{"result"}),

		ZoneCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "tzdb_zone_cache_hits_total",
			Help: "Total zone lookups served from the decode cache",
		}),
		ZoneCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "tzdb_zone_cache_misses_total",
			Help: "Total zone lookups that decoded the zone",
		}),

		HostMatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tzdb_host_matches_total",
			Help: "Total host zone guesses by result",
		}, []string{"result"}),

		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tzdb_host_match_duration_seconds",
			Help:    "Duration of host zone matching over all candidates",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveDecode records the outcome of decoding a zone.
func (m *Metrics) ObserveDecode(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ZoneDecodes.WithLabelValues("error").Inc()
		return
	}
	m.ZoneDecodes.WithLabelValues("ok").Inc()
}

// ObserveCache records whether a zone lookup hit the decode cache.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ZoneCacheHits.Inc()
	} else {
		m.ZoneCacheMisses.Inc()
	}
}

// IncrementMatch records a host zone guess.
func (m *Metrics) IncrementMatch(result string) {
	if m != nil {
		m.HostMatches.WithLabelValues(result).Inc()
	}
}

// ObserveMatchDuration records how long a host zone match took.
func (m *Metrics) ObserveMatchDuration(d time.Duration) {
	if m != nil {
		m.MatchDuration.Observe(d.Seconds())
	}
}

