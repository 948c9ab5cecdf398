// Package poller runs the poll cycle: for every tenant with a destination it
// checks each tracked player for a newly finished match, dispatches a summary
// and advances the stored match pointer.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"matchwatch/internal/eventbus"
	"matchwatch/internal/observability/metrics"
	"matchwatch/internal/riot"
	"matchwatch/internal/summary"
	"matchwatch/internal/tracking"
	logx "matchwatch/pkg/logx"
)

var ErrCycleRunning = errors.New("poll cycle already running")

// DefaultSpacing separates the start of consecutive entity checks.
const DefaultSpacing = 1500 * time.Millisecond

type MatchSource interface {
	LatestMatchID(ctx context.Context, puuid string) (string, bool, error)
	MatchDetail(ctx context.Context, matchID string) (*riot.MatchDetail, error)
}

type GameSource interface {
	ActiveGame(ctx context.Context, puuid string) (*riot.ActiveGame, bool, error)
}

// Pinger is the optional connectivity check run before a cycle.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Sender interface {
	Send(ctx context.Context, tenant, destinationRef string, s summary.Summary) error
	NotifyNotFound(ctx context.Context, tenant, destinationRef, displayID string) error
}

type Config struct {
	Spacing  time.Duration
	Precheck bool
}

type Options struct {
	Store    *tracking.Store
	Resolver tracking.IdentityResolver
	Matches  MatchSource
	Detector Detector // defaults to LatestMatchDetector over Matches
	Builder  *summary.Builder
	Sender   Sender
	Pinger   Pinger
	Bus      eventbus.Bus
	Metrics  *metrics.Metrics
	Log      logx.Logger
}

type Service struct {
	store    *tracking.Store
	resolver tracking.IdentityResolver
	matches  MatchSource
	detector Detector
	builder  *summary.Builder
	sender   Sender
	pinger   Pinger
	bus      eventbus.Bus
	metrics  *metrics.Metrics
	log      logx.Logger

	guard Guard

	mu  sync.Mutex
	cfg Config

	cycles  atomic.Uint64
	dropped atomic.Uint64
	last    atomic.Pointer[CycleReport]
}

func New(cfg Config, opts Options) *Service {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	det := opts.Detector
	if det == nil {
		det = LatestMatchDetector{Matches: opts.Matches}
	}
	builder := opts.Builder
	if builder == nil {
		builder = summary.NewBuilder(summary.DefaultMinDuration, nil)
	}
	s := &Service{
		store:    opts.Store,
		resolver: opts.Resolver,
		matches:  opts.Matches,
		detector: det,
		builder:  builder,
		sender:   opts.Sender,
		pinger:   opts.Pinger,
		bus:      bus,
		metrics:  opts.Metrics,
		log:      log,
	}
	s.Apply(cfg)
	return s
}

// Apply swaps spacing and pre-check settings; a running cycle keeps its own.
func (s *Service) Apply(cfg Config) {
	if cfg.Spacing < 0 {
		cfg.Spacing = 0
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Tick runs one cycle unless one is already running, in which case the tick
// is dropped and ran is false.
func (s *Service) Tick(ctx context.Context) (rep CycleReport, ran bool) {
	if !s.guard.TryAcquire() {
		n := s.dropped.Add(1)
		s.metrics.TickDropped()
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTickDropped, Time: time.Now(), Data: n})
		s.log.Warn("poll tick dropped; previous cycle still running", logx.Uint64("dropped_total", n))
		return CycleReport{}, false
	}
	defer s.guard.Release()

	rep = s.runCycle(ctx)
	s.cycles.Add(1)
	s.last.Store(&rep)
	return rep, true
}

// RunOnce runs a single cycle and returns its aggregated error.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	rep, ran := s.Tick(ctx)
	if !ran {
		return rep, ErrCycleRunning
	}
	return rep, rep.Err()
}

func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		State:        s.guard.State().String(),
		Detector:     s.detector.Name(),
		Cycles:       s.cycles.Load(),
		DroppedTicks: s.dropped.Load(),
	}
	if last := s.last.Load(); last != nil {
		cp := *last
		snap.Last = &cp
	}
	return snap
}

type cycle struct {
	mu      sync.Mutex
	rep     *CycleReport
	errs    *multierror.Error
	mutated bool
}

func (c *cycle) addErr(err error) {
	c.mu.Lock()
	c.errs = multierror.Append(c.errs, err)
	c.mu.Unlock()
}

func (c *cycle) record(outcome string, mutated bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mutated {
		c.mutated = true
	}
	if err != nil {
		c.errs = multierror.Append(c.errs, err)
	}
	switch outcome {
	case metrics.OutcomeNotified:
		c.rep.Notified++
	case metrics.OutcomeSuppressed:
		c.rep.Suppressed++
	case metrics.OutcomeBaselined:
		c.rep.Baselined++
	case metrics.OutcomeEvicted:
		c.rep.Evicted++
	case metrics.OutcomeFailed:
		c.rep.Failed++
	default:
		c.rep.Unchanged++
	}
}

func (s *Service) runCycle(ctx context.Context) (rep CycleReport) {
	cfg := s.config()
	rep = CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := s.log.With(logx.String("cycle", rep.ID))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleStarted, Time: rep.StartedAt, Data: rep.ID})

	defer func() {
		rep.Duration = time.Since(rep.StartedAt)
		s.metrics.CycleFinished(rep.Duration, rep.result())
		s.metrics.SetTracked(s.store.Counts())
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleFinished, Time: time.Now(), Data: rep})
	}()

	if cfg.Precheck && s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			rep.Skipped = true
			rep.SkipReason = err.Error()
			log.Warn("poll cycle skipped; upstream unreachable", logx.Err(err))
			return rep
		}
	}

	limit := rate.Inf
	if cfg.Spacing > 0 {
		limit = rate.Every(cfg.Spacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	c := &cycle{rep: &rep}
	var g errgroup.Group
tenants:
	for _, t := range s.store.TenantsWithDestination() {
		rep.Tenants++
		for _, e := range t.SortedEntities() {
			if err := limiter.Wait(ctx); err != nil {
				c.addErr(fmt.Errorf("cycle interrupted: %w", err))
				break tenants
			}
			rep.Entities++
			t, e := t, e
			g.Go(func() error {
				outcome, mutated, err := s.processEntity(ctx, t, e)
				s.metrics.EntityOutcome(outcome)
				if err != nil {
					log.Warn("entity check failed",
						logx.String("tenant", t.ID),
						logx.String("entity", e.DisplayID),
						logx.Err(err),
					)
				}
				c.record(outcome, mutated, err)
				return nil
			})
		}
	}
	_ = g.Wait()

	if c.mutated {
		if err := s.store.Save(ctx); err != nil {
			rep.SaveError = err.Error()
			c.addErr(err)
			log.Error("persist after poll cycle failed", logx.Err(err))
		}
	}
	rep.finish(c.errs)

	log.Info("poll cycle finished",
		logx.Int("tenants", rep.Tenants),
		logx.Int("entities", rep.Entities),
		logx.Int("notified", rep.Notified),
		logx.Int("baselined", rep.Baselined),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", time.Since(rep.StartedAt)),
	)
	return rep
}

// processEntity checks one player. Errors stay local to the entity.
func (s *Service) processEntity(ctx context.Context, t tracking.Tenant, e tracking.Entity) (outcome string, mutated bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = metrics.OutcomeFailed, fmt.Errorf("%s: panic: %v", e.DisplayID, r)
		}
	}()

	if e.InternalID == "" {
		puuid, err := s.resolver.Resolve(ctx, e.DisplayID)
		if errors.Is(err, riot.ErrNotFound) {
			return s.evict(ctx, t, e)
		}
		if err != nil {
			return metrics.OutcomeFailed, false, fmt.Errorf("resolve %s: %w", e.DisplayID, err)
		}
		if !s.store.SetInternalID(t.ID, e.DisplayID, puuid) {
			return metrics.OutcomeUnchanged, false, nil
		}
		e.InternalID = puuid
		mutated = true
	}

	det, err := s.detector.Detect(ctx, t.ID, e)
	if err != nil {
		return metrics.OutcomeFailed, mutated, fmt.Errorf("detect %s: %w", e.DisplayID, err)
	}
	if !det.Found || det.MatchID == e.LastMatchID {
		return metrics.OutcomeUnchanged, mutated, nil
	}

	if e.LastMatchID == "" {
		if s.store.AdvancePointer(t.ID, e.DisplayID, "", det.MatchID) {
			s.log.Debug("baseline recorded", logx.String("tenant", t.ID), logx.String("entity", e.DisplayID), logx.String("match", det.MatchID))
			return metrics.OutcomeBaselined, true, nil
		}
		return metrics.OutcomeUnchanged, mutated, nil
	}

	detail, err := s.matches.MatchDetail(ctx, det.MatchID)
	if err != nil {
		return metrics.OutcomeFailed, mutated, fmt.Errorf("match %s for %s: %w", det.MatchID, e.DisplayID, err)
	}
	sum, ok, err := s.builder.Build(detail, e.InternalID)
	if err != nil {
		return metrics.OutcomeFailed, mutated, fmt.Errorf("summary %s for %s: %w", det.MatchID, e.DisplayID, err)
	}
	if !ok {
		if s.store.AdvancePointer(t.ID, e.DisplayID, e.LastMatchID, det.MatchID) {
			mutated = true
		}
		return metrics.OutcomeSuppressed, mutated, nil
	}

	sum.DisplayID = e.DisplayID
	if err := s.sender.Send(ctx, t.ID, t.Destination, sum); err != nil {
		s.metrics.Notification(false)
		return metrics.OutcomeFailed, mutated, fmt.Errorf("dispatch %s for %s: %w", det.MatchID, e.DisplayID, err)
	}
	s.metrics.Notification(true)

	if s.store.AdvancePointer(t.ID, e.DisplayID, e.LastMatchID, det.MatchID) {
		mutated = true
	} else {
		s.log.Debug("pointer changed during dispatch", logx.String("tenant", t.ID), logx.String("entity", e.DisplayID))
	}
	return metrics.OutcomeNotified, mutated, nil
}

type forgetter interface {
	Forget(tenant, displayID string)
}

// Forget drops detector state for an entity that is no longer tracked.
func (s *Service) Forget(tenant, displayID string) {
	if f, ok := s.detector.(forgetter); ok {
		f.Forget(tenant, displayID)
	}
}

func (s *Service) evict(ctx context.Context, t tracking.Tenant, e tracking.Entity) (string, bool, error) {
	if !s.store.Evict(t.ID, e.DisplayID) {
		return metrics.OutcomeUnchanged, false, nil
	}
	s.Forget(t.ID, e.DisplayID)
	s.log.Info("entity evicted; identity not found", logx.String("tenant", t.ID), logx.String("entity", e.DisplayID))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeEntityEvicted,
		Time: time.Now(),
		Data: map[string]string{"tenant": t.ID, "entity": e.DisplayID},
	})
	if err := s.sender.NotifyNotFound(ctx, t.ID, t.Destination, e.DisplayID); err != nil {
		s.log.Warn("not-found notice failed", logx.String("tenant", t.ID), logx.String("entity", e.DisplayID), logx.Err(err))
	}
	return metrics.OutcomeEvicted, true, nil
}
