package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchwatch/internal/transport"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestWriterLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "poller"))

	log.Debug("hidden")
	log.Info("cycle done", Int("notified", 2), Duration("took", 1500*time.Millisecond))
	log.With(String("comp", "dispatch")).Warn("send failed", Strings("ids", []string{"a", "b"}))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "cycle done", lines[0]["message"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "poller", lines[0]["comp"])
	assert.EqualValues(t, 2, lines[0]["notified"])
	assert.Contains(t, lines[0]["caller"], "logging_test.go:")
	assert.Equal(t, "dispatch", lines[1]["comp"], "later field wins")
	assert.Equal(t, "warn", lines[1]["level"])
}

func TestEnabled(t *testing.T) {
	log := NewWriter(&bytes.Buffer{}, "warn")
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	assert.NotPanics(t, func() { zero.Error("nothing", Err(errors.New("x"))) })
	assert.False(t, Nop().IsZero())
	assert.NotPanics(t, func() { Nop().Info("nothing") })
}

func TestFormatOpsLine(t *testing.T) {
	got := formatOpsLine([]byte(`{"level":"warn","time":"t","message":"send failed","tenant":"-100","attempt":2}` + "\n"))
	assert.Equal(t, "[WARN] send failed\n- attempt=2\n- tenant=-100", got)

	assert.Equal(t, "not json", formatOpsLine([]byte("not json\n")))

	long := formatOpsLine([]byte(`{"level":"error","message":"` + strings.Repeat("x", 5000) + `"}`))
	assert.Len(t, long, 3500)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, parseLevel(" warning ", LevelInfo))
	assert.Equal(t, LevelDebug, parseLevel("DEBUG", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("loud", LevelInfo))
}

type opsSink struct {
	mu   sync.Mutex
	msgs []string
	to   []transport.ChatTarget
}

func (s *opsSink) Start(context.Context, chan<- transport.Update) error { return nil }
func (s *opsSink) Stop(context.Context) error                           { return nil }

func (s *opsSink) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	s.to = append(s.to, to)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (s *opsSink) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func TestServiceForwardsToOpsChat(t *testing.T) {
	sink := &opsSink{}
	svc, log := New(Config{Level: "debug", OpsChat: OpsChatConfig{Enabled: false}}, sink)
	t.Cleanup(func() { _ = svc.Close() })

	svc.SetOpsTarget(transport.ChatTarget{ChatID: -100, ThreadID: 4})
	svc.Apply(Config{Level: "debug", OpsChat: OpsChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}})

	log.Info("below threshold")
	log.Error("poll cycle failed", String("tenant", "-100"))

	require.Eventually(t, func() bool { return len(sink.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	msg := sink.sent()[0]
	assert.True(t, strings.HasPrefix(msg, "[ERROR] poll cycle failed"), msg)
	assert.Contains(t, msg, "- tenant=-100")
	sink.mu.Lock()
	assert.Equal(t, 4, sink.to[0].ThreadID)
	sink.mu.Unlock()
}

func TestServiceNoTargetDropsForwarding(t *testing.T) {
	sink := &opsSink{}
	svc, log := New(Config{Level: "info", OpsChat: OpsChatConfig{Enabled: true}}, sink)
	t.Cleanup(func() { _ = svc.Close() })

	log.Error("nobody listens")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.sent())
}
