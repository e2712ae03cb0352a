package autosearch

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report session activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessions         *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	rounds           prometheus.Counter
	providerFailures prometheus.Counter
	newResults       prometheus.Counter
	active           prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the instance registered with the global Prometheus registry.
// Collectors are created once so multiple engines can share them.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics registered with reg. Registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autosearch",
			Name:      "sessions_total",
			Help:      "Sessions finished, by outcome.",
		}, []string{"outcome"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autosearch",
			Name:      "session_duration_seconds",
			Help:      "Wall time of a session from classification to terminal event.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autosearch",
			Name:      "followup_queries_total",
			Help:      "Follow-up queries executed during expansion.",
		}),
		providerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autosearch",
			Name:      "provider_failures_total",
			Help:      "Search provider failures absorbed as empty batches.",
		}),
		newResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autosearch",
			Name:      "unique_results_total",
			Help:      "Unique results added to sessions after deduplication.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autosearch",
			Name:      "sessions_active",
			Help:      "Sessions currently running.",
		}),
	}
	reg.MustRegister(m.sessions, m.sessionDuration, m.rounds, m.providerFailures, m.newResults, m.active)
	return m
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) sessionFinished(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) followUp() {
	if m == nil {
		return
	}
	m.rounds.Inc()
}

func (m *Metrics) providerFailure() {
	if m == nil {
		return
	}
	m.providerFailures.Inc()
}

func (m *Metrics) uniqueResults(n int) {
	if m == nil {
		return
	}
	m.newResults.Add(float64(n))
}
