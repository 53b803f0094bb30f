package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/nudge/internal/ir"
)

// Metrics exposes Prometheus collectors for reminder lifecycle activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	events          *prometheus.CounterVec
	considered      prometheus.Histogram
	fired           prometheus.Counter
	duplicates      prometheus.Counter
	notifyFailures  prometheus.Counter
	persistFailures prometheus.Counter
	notifyRetries   prometheus.Counter
	inFlight        prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// DefaultMetrics returns the process-wide instance registered with the
// default Prometheus registerer. Collectors are created once so repeated
// construction does not panic on duplicate registration.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetrics registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry(). Registration errors panic, as with promauto.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "System events handled, by event type.",
		}, []string{"type"}),
		considered: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "listening_reminders",
			Help:      "Waiting reminders whose triggers matched an event.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		fired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "reminders_fired_total",
			Help:      "Reminders transitioned to FIRED and persisted.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "duplicates_suppressed_total",
			Help:      "Fire attempts skipped because the reminder was already in flight.",
		}),
		notifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "notify_failures_total",
			Help:      "Notifications that failed; the reminder stayed WAITING.",
		}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "persist_failures_total",
			Help:      "Reminders notified but not persisted as FIRED.",
		}),
		notifyRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "notify_retries_total",
			Help:      "Notification attempts retried after a transient failure.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nudge",
			Subsystem: "engine",
			Name:      "in_flight",
			Help:      "Reminders currently between notify and persist.",
		}),
	}
}

func (m *Metrics) observeEvent(t ir.EventType, considered int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(t)).Inc()
	m.considered.Observe(float64(considered))
}

func (m *Metrics) incFired() {
	if m == nil {
		return
	}
	m.fired.Inc()
}

func (m *Metrics) incDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) incNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) incPersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) incNotifyRetry() {
	if m == nil {
		return
	}
	m.notifyRetries.Inc()
}

func (m *Metrics) setInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}
