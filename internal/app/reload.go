package app

import (
	"context"
	"slices"
	"strings"

	"matchwatch/internal/config"
	"matchwatch/internal/eventbus"
	logx "matchwatch/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	warnRestart := func(changed bool, key string) {
		if changed {
			a.log.Warn("setting changed; restart required for it to take effect", logx.String("key", key))
		}
	}
	warnRestart(slices.Contains(sections, "storage"), "storage")
	warnRestart(prev.Riot.APIKey != next.Riot.APIKey, "riot.api_key")
	warnRestart(prev.Riot.RegionalURL != next.Riot.RegionalURL || prev.Riot.PlatformURL != next.Riot.PlatformURL, "riot.*_url")
	warnRestart(prev.Telegram.Token != next.Telegram.Token, "telegram.token")
	warnRestart(!strings.EqualFold(prev.Poller.Detector, next.Poller.Detector), "poller.detector")
	warnRestart(prev.Poller.MinDuration != next.Poller.MinDuration, "poller.min_duration")

	a.logs.SetOpsTarget(opsTarget(next))
	a.logs.Apply(logConfig(next))

	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	a.cmdm.SetTenantID(next.Tenancy.TenantID)
	if prev.Telegram.CommandsPerMinute != next.Telegram.CommandsPerMinute {
		a.cmdm.SetRateLimit(commandsPerMinute(next))
	}

	if dcfg, err := dispatchConfig(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
	}
	if pcfg, err := pollerConfig(next); err != nil {
		a.log.Warn("invalid poller config; keeping previous", logx.Err(err))
	} else {
		a.poller.Apply(pcfg)
	}

	if pollSchedule(prev) != pollSchedule(next) {
		if err := a.sched.Register(pollJobName, pollSchedule(next), a.pollJob); err != nil {
			a.log.Warn("invalid poll schedule; keeping previous", logx.Err(err))
		}
	}
	a.sched.Apply(schedulerConfig(next))

	if scfg, err := serverConfig(next); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else if err := a.ops.Reconfigure(ctx, scfg); err != nil {
		a.log.Error("ops server reconfigure failed", logx.Err(err))
	}

	if err := applyDefaultDestination(ctx, next, a.store, a.loadErr == nil, a.log); err != nil {
		a.log.Warn("default destination not applied", logx.Err(err))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
