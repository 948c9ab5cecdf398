package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchwatch/internal/eventbus"
	"matchwatch/internal/summary"
	"matchwatch/internal/transport"
	logx "matchwatch/pkg/logx"
)

type sentMsg struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sentMsg
	errs  []error // consumed per call
	calls int
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return transport.MessageRef{}, err
		}
	}
	f.sent = append(f.sent, sentMsg{to: to, text: text, opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func newTestDispatcher(ad *fakeAdapter, bus eventbus.Bus) *Dispatcher {
	d := New(Config{RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond}, ad, bus, logx.Nop())
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func sample() summary.Summary {
	return summary.Summary{
		MatchID: "M101", DisplayID: "Ava#EUW", Result: "Won", Champion: "Ahri",
		Kills: 10, Deaths: 2, Assists: 8, KDARatio: "9.00", KillParticipation: "55%",
		Multikill: "Double Kill", Mode: "Summoner's Rift", Duration: "30:00",
	}
}

func TestSendDeliversRenderedSummary(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	d := newTestDispatcher(ad, bus)
	require.NoError(t, d.Send(context.Background(), "T", "-100123:7", sample()))

	require.Len(t, ad.sent, 1)
	msg := ad.sent[0]
	assert.Equal(t, transport.ChatTarget{ChatID: -100123, ThreadID: 7}, msg.to)
	assert.Equal(t, "HTML", msg.opt.ParseMode)
	assert.True(t, strings.HasPrefix(msg.text, "<b>Ava#EUW</b> has finished their game!"))
	assert.Contains(t, msg.text, "KDA: <b>9.00</b>")
	assert.Contains(t, msg.text, "Kill participation: <b>55%</b>")
	assert.Contains(t, msg.text, "Multikill: <b>Double Kill</b>")

	e := <-events
	assert.Equal(t, eventbus.TypeDispatchSent, e.Type)
	assert.Len(t, d.History(), 1)
}

func TestSendIsIdempotentPerMatch(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	d := newTestDispatcher(ad, nil)

	require.NoError(t, d.Send(context.Background(), "T", "-1", sample()))
	require.NoError(t, d.Send(context.Background(), "T", "-1", sample()))
	assert.Len(t, ad.sent, 1)

	require.NoError(t, d.Send(context.Background(), "U", "-2", sample()))
	assert.Len(t, ad.sent, 2, "other tenant is a different delivery")
}

func TestSendInvalidDestination(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ref  string
		errs []error
	}{
		{name: "empty", ref: ""},
		{name: "garbage", ref: "#general"},
		{name: "unreachable chat", ref: "-100", errs: []error{transport.ErrChatUnreachable}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ad := &fakeAdapter{errs: tt.errs}
			bus := eventbus.New()
			events, unsub := bus.Subscribe(4)
			defer unsub()

			err := newTestDispatcher(ad, bus).Send(context.Background(), "T", tt.ref, sample())
			require.ErrorIs(t, err, ErrInvalidDestination)
			assert.Empty(t, ad.sent)
			assert.LessOrEqual(t, ad.calls, 1, "unreachable chats are not retried")
			assert.Equal(t, eventbus.TypeDispatchFailed, (<-events).Type)
		})
	}
}

func TestSendRetriesAdapterErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("telegram 502")

	ad := &fakeAdapter{errs: []error{boom, boom}}
	d := newTestDispatcher(ad, nil)
	require.NoError(t, d.Send(context.Background(), "T", "-1", sample()))
	assert.Equal(t, 3, ad.calls)

	ad = &fakeAdapter{errs: []error{boom, boom, boom}}
	d = newTestDispatcher(ad, nil)
	err := d.Send(context.Background(), "T", "-1", sample())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, ad.calls)

	// A failed delivery is not remembered, so the next attempt goes out.
	require.NoError(t, d.Send(context.Background(), "T", "-1", sample()))
	assert.Len(t, ad.sent, 1)
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: 350 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, retryDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, retryDelay(cfg, 2))
	assert.Equal(t, 350*time.Millisecond, retryDelay(cfg, 3))
}

func TestNotifyNotFound(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	d := newTestDispatcher(ad, eventbus.Nop())

	require.NoError(t, d.NotifyNotFound(context.Background(), "T", "-100123", "Gone#EUW"))
	require.Len(t, ad.sent, 1)
	assert.Equal(t, "Summoner <b>Gone#EUW</b> doesn't exist.", ad.sent[0].text)

	err := d.NotifyNotFound(context.Background(), "T", "", "Gone#EUW")
	assert.ErrorIs(t, err, ErrInvalidDestination)
}
