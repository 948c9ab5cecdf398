package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CycleFinished(time.Second, "ok")
	m.TickDropped()
	m.EntityOutcome(OutcomeNotified)
	m.Notification(true)
	m.SetTracked(1, 2)
	m.UpstreamRetry()
	m.ObserveCommand("track", "ok")
	assert.Nil(t, m.Gatherer())
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TickDropped()
	m.TickDropped()
	m.EntityOutcome(OutcomeNotified)
	m.EntityOutcome(OutcomeSuppressed)
	m.EntityOutcome(OutcomeNotified)
	m.Notification(false)
	m.SetTracked(2, 5)
	m.CycleFinished(250*time.Millisecond, "ok")
	m.ObserveCommand("track", "ok")
	m.ObserveCommand("track", "limited")
	m.ObserveCommand("track", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticksDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.entityOutcomes.WithLabelValues(OutcomeNotified)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.tracked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("track", "ok")))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["matchwatch_poll_cycle_duration_seconds"])
	assert.True(t, names["matchwatch_poll_ticks_dropped_total"])
}
