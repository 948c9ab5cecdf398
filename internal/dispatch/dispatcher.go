// Package dispatch delivers match summaries to a tenant's destination chat.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"matchwatch/internal/eventbus"
	"matchwatch/internal/summary"
	"matchwatch/internal/transport"
	logx "matchwatch/pkg/logx"
)

var ErrInvalidDestination = errors.New("invalid destination")

type Config struct {
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	SendTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 24 * time.Hour
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 5000
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Event is published on the bus for every delivery outcome.
type Event struct {
	Tenant      string    `json:"tenant"`
	Entity      string    `json:"entity"`
	MatchID     string    `json:"match_id"`
	Destination string    `json:"destination"`
	At          time.Time `json:"at"`
	Error       string    `json:"error,omitempty"`
}

// HistoryItem is a recently delivered notification, newest last.
type HistoryItem struct {
	At      time.Time
	Tenant  string
	Entity  string
	MatchID string
}

const historySize = 100

// Dispatcher sends synchronously so the caller knows whether to advance the
// match pointer. Sends are rate limited and adapter errors retried with
// backoff; an unreachable chat fails immediately.
type Dispatcher struct {
	adapter transport.Adapter
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, adapter transport.Adapter, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	d := &Dispatcher{
		adapter: adapter,
		bus:     bus,
		log:     log,
		dedup:   map[string]time.Time{},
		sleep:   sleepCtx,
	}
	d.Apply(cfg)
	return d
}

// Apply swaps rate and retry settings; dedup state is kept.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	d.mu.Unlock()
}

// Send delivers s to destinationRef. A repeat of an already delivered
// (tenant, entity, match) is a successful no-op.
func (d *Dispatcher) Send(ctx context.Context, tenant, destinationRef string, s summary.Summary) error {
	ev := Event{Tenant: tenant, Entity: s.DisplayID, MatchID: s.MatchID, Destination: destinationRef}

	target, err := transport.ParseChatTarget(destinationRef)
	if err != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidDestination, destinationRef)
		d.publishFailed(ev, err)
		return err
	}

	key := tenant + "|" + s.DisplayID + "|" + s.MatchID
	if d.delivered(key) {
		d.log.Debug("duplicate dispatch skipped", logx.String("key", key))
		return nil
	}

	text := Render(s).String()
	if err := d.sendWithRetry(ctx, target, text); err != nil {
		d.publishFailed(ev, err)
		return err
	}

	d.markDelivered(key)
	d.appendHistory(HistoryItem{At: time.Now(), Tenant: tenant, Entity: s.DisplayID, MatchID: s.MatchID})
	ev.At = time.Now()
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchSent, Time: ev.At, Data: ev})
	return nil
}

// NotifyNotFound tells the tenant that displayID was dropped because the
// identity no longer exists upstream.
func (d *Dispatcher) NotifyNotFound(ctx context.Context, tenant, destinationRef, displayID string) error {
	ev := Event{Tenant: tenant, Entity: displayID, Destination: destinationRef}
	target, err := transport.ParseChatTarget(destinationRef)
	if err != nil {
		err = fmt.Errorf("%w: %q", ErrInvalidDestination, destinationRef)
		d.publishFailed(ev, err)
		return err
	}
	if err := d.sendWithRetry(ctx, target, RenderNotFound(displayID).String()); err != nil {
		d.publishFailed(ev, err)
		return err
	}
	return nil
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, target transport.ChatTarget, text string) error {
	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	opts := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := d.adapter.SendText(callCtx, target, text, opts)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, transport.ErrChatUnreachable) || errors.Is(err, transport.ErrBadTarget) {
			return fmt.Errorf("%w: %w", ErrInvalidDestination, err)
		}
		lastErr = err
		d.log.Debug("dispatch send failed", logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))
		if attempt == attempts {
			break
		}
		if err := d.sleep(ctx, retryDelay(cfg, attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("send to %s: %w", target, lastErr)
}

func (d *Dispatcher) publishFailed(ev Event, err error) {
	ev.At = time.Now()
	ev.Error = err.Error()
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchFailed, Time: ev.At, Data: ev})
}

func (d *Dispatcher) delivered(key string) bool {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	until, ok := d.dedup[key]
	return ok && time.Now().Before(until)
}

func (d *Dispatcher) markDelivered(key string) {
	d.mu.Lock()
	window, maxEntries := d.cfg.DedupWindow, d.cfg.DedupMaxEntries
	d.mu.Unlock()

	now := time.Now()
	d.dmu.Lock()
	defer d.dmu.Unlock()
	d.dedup[key] = now.Add(window)
	for k, until := range d.dedup {
		if !now.Before(until) {
			delete(d.dedup, k)
		}
	}
	for len(d.dedup) > maxEntries {
		var oldest string
		var oldestAt time.Time
		for k, until := range d.dedup {
			if oldest == "" || until.Before(oldestAt) {
				oldest, oldestAt = k, until
			}
		}
		delete(d.dedup, oldest)
	}
}

func (d *Dispatcher) appendHistory(it HistoryItem) {
	d.hmu.Lock()
	d.history = append(d.history, it)
	if len(d.history) > historySize {
		d.history = d.history[len(d.history)-historySize:]
	}
	d.hmu.Unlock()
}

// History returns recent deliveries, newest last.
func (d *Dispatcher) History() []HistoryItem {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return append([]HistoryItem(nil), d.history...)
}

// retryDelay is base*2^(attempt-1), capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.RetryMaxDelay {
			return cfg.RetryMaxDelay
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
