package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "matchwatch/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@every 60s", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "60s", kind: SpecInterval, source: "duration", duration: time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every:1m30s", kind: SpecInterval, source: "duration", duration: 90 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.source, got.Source)
			if tt.kind == SpecInterval {
				assert.Equal(t, tt.duration, got.Every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5s", "0s", "01:75", "interval:", "cron:"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestSpreadDelaysOnlyTheFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(time.Minute, now, "poll")
	assert.GreaterOrEqual(t, jitter, time.Duration(0))
	assert.Less(t, jitter, 30*time.Second)

	first := sched.Next(now)
	assert.Equal(t, now.Add(time.Minute+jitter), first)
	assert.Equal(t, first.Add(time.Minute), sched.Next(first))
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	require.Error(t, s.Register("poll", "", func(context.Context) {}))
	require.Error(t, s.Register("poll", "61 * * * *", func(context.Context) {}))
}

func TestServiceRunsJobAndRecoversPanics(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	var runs atomic.Int32
	require.NoError(t, s.Register("poll", "@every 1s", func(ctx context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	snap := s.Snapshot()
	assert.True(t, snap.Running)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "poll", snap.Jobs[0].Name)
	assert.False(t, snap.Jobs[0].Next.IsZero())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
	assert.False(t, s.Snapshot().Running)
}

func TestDisabledServiceDoesNotStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	require.NoError(t, s.Register("poll", "60s", func(context.Context) {}))
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.Snapshot().Running)

	s.Apply(Config{Enabled: true})
	assert.True(t, s.Snapshot().Running, "enabling on reload starts triggering")
	s.Apply(Config{})
	assert.False(t, s.Snapshot().Running)
}
