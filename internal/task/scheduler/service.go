package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"matchwatch/internal/eventbus"
	logx "matchwatch/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		// SecondOptional accepts both 5- and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		now:    time.Now,
	}
}

// Register adds or replaces the job called name. It takes effect immediately
// when the service is running.
func (s *Service) Register(name, spec string, job Job) error {
	parsed, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	if parsed.Kind == SpecCron {
		if _, err := s.parser.Parse(parsed.Cron); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	def := &jobDef{name: name, spec: spec, parsed: parsed, job: job}
	replaced := false
	for i, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			s.defs[i] = def
			replaced = true
			break
		}
	}
	if !replaced {
		s.defs = append(s.defs, def)
	}
	if s.c != nil {
		return s.addLocked(def)
	}
	return nil
}

func (s *Service) addLocked(d *jobDef) error {
	ctx := s.ctx
	job := d.job
	name := d.name
	run := cron.FuncJob(func() {
		s.log.Debug("job triggered", logx.String("job", name))
		job(ctx)
	})
	wrapped := cron.NewChain(cron.Recover(cronLogger{log: s.log.With(logx.String("job", name))})).Then(run)

	switch d.parsed.Kind {
	case SpecInterval:
		sched, spread := intervalWithSpread(d.parsed.Every, s.now(), name)
		d.spread = spread
		d.entryID = s.c.Schedule(sched, wrapped)
	default:
		sched, err := s.parser.Parse(d.parsed.Cron)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		d.entryID = s.c.Schedule(sched, wrapped)
	}
	s.log.Info("job scheduled",
		logx.String("job", name),
		logx.String("spec", d.parsed.String()),
		logx.Duration("startup_spread", d.spread),
	)
	return nil
}

// Enabled reports the configured flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start begins triggering. Jobs receive ctx. A disabled service remembers
// ctx so a later Apply can enable it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	s.startLocked()
	return nil
}

func (s *Service) startLocked() {
	s.loc = loadLocation(s.cfg.Timezone, s.log)
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	for _, d := range s.defs {
		if err := s.addLocked(d); err != nil {
			s.log.Error("job not scheduled", logx.String("job", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.defs)))
}

// Stop stops triggering and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for running jobs")
	}
	s.log.Info("scheduler stopped")
}

// Apply restarts triggering when the timezone or the enabled flag changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	c := s.c
	ctx := s.ctx
	s.mu.Unlock()

	switch {
	case c != nil && !cfg.Enabled:
		s.Stop(context.Background())
	case c == nil && cfg.Enabled && ctx != nil:
		_ = s.Start(ctx)
	case c != nil && strings.TrimSpace(old.Timezone) != strings.TrimSpace(cfg.Timezone):
		s.Stop(context.Background())
		_ = s.Start(ctx)
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: s.cfg.Timezone}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	for _, d := range s.defs {
		it := JobInfo{Name: d.name, Spec: d.parsed.String(), Spread: d.spread}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Jobs = append(snap.Jobs, it)
	}
	return snap
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
