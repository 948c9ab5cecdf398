// Package metrics holds the prometheus collectors for the poll loop and the
// dispatcher. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matchwatch"

// Entity outcomes recorded per poll unit.
const (
	OutcomeNotified   = "notified"
	OutcomeSuppressed = "suppressed"
	OutcomeBaselined  = "baselined"
	OutcomeUnchanged  = "unchanged"
	OutcomeEvicted    = "evicted"
	OutcomeFailed     = "failed"
)

type Metrics struct {
	registry prometheus.Gatherer

	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	ticksDropped   prometheus.Counter
	entityOutcomes *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	tracked        prometheus.Gauge
	tenants        prometheus.Gauge
	upstreamRetry  prometheus.Counter
	commands       *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass prometheus.NewRegistry();
// the service passes the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result (ok, errors, skipped).",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of a full poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		ticksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_dropped_total",
			Help:      "Ticks dropped because a cycle was still running.",
		}),
		entityOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_entity_outcomes_total",
			Help:      "Per-entity poll outcomes.",
		}, []string{"outcome"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Match notifications by delivery result.",
		}, []string{"result"}),
		tracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_entities",
			Help:      "Tracked players across all tenants.",
		}),
		tenants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tenants",
			Help:      "Known tenants.",
		}),
		upstreamRetry: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Retries of transient Riot API errors.",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_commands_total",
			Help:      "Chat commands handled, by command and result (ok, error, limited).",
		}, []string{"command", "result"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.registry = g
	}
	return m
}

// Gatherer returns the registry the collectors live on, nil if unknown.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CycleFinished(d time.Duration, result string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.ticksDropped.Inc()
}

func (m *Metrics) EntityOutcome(outcome string) {
	if m == nil {
		return
	}
	m.entityOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.notifications.WithLabelValues("sent").Inc()
		return
	}
	m.notifications.WithLabelValues("failed").Inc()
}

func (m *Metrics) SetTracked(tenants, entities int) {
	if m == nil {
		return
	}
	m.tenants.Set(float64(tenants))
	m.tracked.Set(float64(entities))
}

func (m *Metrics) UpstreamRetry() {
	if m == nil {
		return
	}
	m.upstreamRetry.Inc()
}

// ObserveCommand counts one handled chat command.
func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}
