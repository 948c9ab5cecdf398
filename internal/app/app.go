// Package app wires the tracking store, the Riot client, the poller and the
// Telegram front-end into one process and keeps them in sync with the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"matchwatch/internal/config"
	"matchwatch/internal/dispatch"
	"matchwatch/internal/eventbus"
	"matchwatch/internal/observability/metrics"
	"matchwatch/internal/observability/server"
	"matchwatch/internal/poller"
	"matchwatch/internal/riot"
	"matchwatch/internal/runtime/supervisor"
	"matchwatch/internal/storage"
	"matchwatch/internal/summary"
	"matchwatch/internal/task/scheduler"
	"matchwatch/internal/tracking"
	kit "matchwatch/internal/transport"
	telegram "matchwatch/internal/transport/telegram/adapter"
	"matchwatch/internal/transport/telegram/router"
	logx "matchwatch/pkg/logx"
	"matchwatch/pkg/systemd"
)

const namesRefreshSchedule = "interval:24h"

type Options struct {
	ConfigPath string
	// DotEnv lists .env files loaded before the config; empty means ".env".
	DotEnv []string
}

type App struct {
	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	backend storage.Backend
	store   *tracking.Store
	loadErr error

	riot   *riot.Client
	dd     *riot.DataDragon
	names  *summary.NameTable
	disp   *dispatch.Dispatcher
	poller *poller.Service
	sched  *scheduler.Service
	ops    *server.Service

	adapter  *telegram.Adapter
	commands *tracking.Commands
	cmdm     *router.CommandManager
	updates  chan kit.Update

	sup *supervisor.Supervisor
}

// New builds every component from the config file. Nothing runs until Start
// or RunOnce.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm, cfg, err := LoadConfig(opts.ConfigPath, true, opts.DotEnv...)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// Ops forwarding starts disabled so Apply does not warn before the target is set.
	bootLog := logConfig(cfg)
	bootLog.OpsChat.Enabled = false
	logs, log := logx.New(bootLog, ad)
	logs.SetOpsTarget(opsTarget(cfg))
	logs.Apply(logConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		bus:      eventbus.New(),
		registry: prometheus.NewRegistry(),
		adapter:  ad,
		updates:  make(chan kit.Update, 256),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.store, a.backend, err = OpenStore(ctx, cfg, log)
	var readErr *tracking.StoreReadError
	switch {
	case errors.As(err, &readErr):
		a.loadErr = err
		a.log.Error("tracking state unreadable, starting empty", logx.Err(err))
	case err != nil:
		return nil, err
	}

	retry, err := riotRetrier(cfg)
	if err != nil {
		return nil, err
	}
	retry.OnRetry = func(string) { a.metrics.UpstreamRetry() }
	ropts, err := riotOptions(cfg, retry, log.With(logx.String("comp", "riot")))
	if err != nil {
		return nil, err
	}
	if a.riot, err = riot.New(ropts); err != nil {
		return nil, err
	}
	a.dd = riot.NewDataDragon(cfg.Riot.DataDragonURL, cfg.Riot.Locale, nil, retry)
	a.names = summary.NewNameTable(nil)

	dcfg, err := dispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.disp = dispatch.New(dcfg, ad, a.bus, log.With(logx.String("comp", "dispatch")))

	pcfg, err := pollerConfig(cfg)
	if err != nil {
		return nil, err
	}
	minDur, err := minDuration(cfg)
	if err != nil {
		return nil, err
	}
	resolver := riot.NewResolver(a.riot)
	a.poller = poller.New(pcfg, poller.Options{
		Store:    a.store,
		Resolver: resolver,
		Matches:  a.riot,
		Detector: newDetector(cfg, a.riot),
		Builder:  summary.NewBuilder(minDur, a.names),
		Sender:   a.disp,
		Pinger:   a.riot,
		Bus:      a.bus,
		Metrics:  a.metrics,
		Log:      log.With(logx.String("comp", "poller")),
	})

	a.sched = scheduler.New(schedulerConfig(cfg), log.With(logx.String("comp", "scheduler")), a.bus)
	if err := a.sched.Register(pollJobName, pollSchedule(cfg), a.pollJob); err != nil {
		return nil, err
	}
	if err := a.sched.Register("champion_names", namesRefreshSchedule, a.refreshNames); err != nil {
		return nil, err
	}

	scfg, err := serverConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = server.New(scfg, server.Sources{
		Health:   a.health,
		Status:   a.status,
		Gatherer: a.registry,
	}, log.With(logx.String("comp", "ops")))

	a.commands = tracking.NewCommands(a.store, resolver, ad, log.With(logx.String("comp", "commands")))
	a.commands.OnUntrack(a.poller.Forget)
	a.cmdm = router.NewCommandManager(log.With(logx.String("comp", "router")), ad, cfg.Telegram.OwnerUserIDs)
	a.cmdm.SetTenantID(cfg.Tenancy.TenantID)
	a.cmdm.SetRateLimit(commandsPerMinute(cfg))
	a.cmdm.SetObserver(a.metrics)
	a.cmdm.SetBotUsername(ad.Username())

	if err := applyDefaultDestination(ctx, cfg, a.store, a.loadErr == nil, a.log); err != nil {
		return nil, err
	}
	a.metrics.SetTracked(a.store.Counts())
	return a, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) pollJob(ctx context.Context) {
	a.poller.Tick(ctx)
}

func (a *App) refreshNames(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := a.names.Refresh(rctx, a.dd); err != nil {
		a.log.Warn("champion names refresh failed", logx.Err(err))
		return
	}
	a.log.Info("champion names refreshed", logx.Int("count", a.names.Len()), logx.String("version", a.names.Version()))
}

// Start runs the front-end, the scheduler, the ops server and the config
// watcher under one supervisor.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, true)
	})

	a.cmdm.SetRegistry(router.Handlers{Commands: a.commands, Status: a.poller}.Registry())
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.sup.Go0("champion_names.initial", a.refreshNames)
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.ops.Start(a.sup.Context()); err != nil {
		a.log.Error("ops server not started", logx.Err(err))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, func() bool { return a.health().OK })
	})
	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	tenants, entities := a.store.Counts()
	_, _ = systemd.Status(fmt.Sprintf("tracking %d players across %d tenants", entities, tenants))

	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.Int("tenants", tenants),
		logx.Int("entities", entities),
	)
	return nil
}

// RunOnce performs a single poll cycle without starting the front-end.
func (a *App) RunOnce(ctx context.Context) (poller.CycleReport, error) {
	a.refreshNames(ctx)
	return a.poller.RunOnce(ctx)
}

// Close releases what New opened. Use it when Start was never called.
func (a *App) Close() error {
	err := a.backend.Close()
	_ = a.logs.Close()
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "storage.close", time.Second, func(context.Context) error { return a.backend.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown step bounded by max and the caller's deadline, so a
// stuck component cannot stall the others.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, deadline reached", logx.String("name", name))
		return
	}
	sctx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-sctx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
