package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"matchwatch/internal/config"
	"matchwatch/internal/dispatch"
	"matchwatch/internal/observability/server"
	"matchwatch/internal/poller"
	"matchwatch/internal/riot"
	"matchwatch/internal/storage"
	"matchwatch/internal/summary"
	"matchwatch/internal/task/scheduler"
	"matchwatch/internal/tracking"
	"matchwatch/internal/transport"
	"matchwatch/internal/transport/telegram/router"
	logx "matchwatch/pkg/logx"
)

const (
	defaultSchedule = "60s"
	pollJobName     = "poll"
)

// LoadConfig loads .env files, parses the config file and validates it.
func LoadConfig(path string, requireTelegram bool, dotenv ...string) (*config.ConfigManager, *config.Config, error) {
	if err := config.LoadDotEnv(dotenv...); err != nil {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg, requireTelegram); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfgm, cfg, nil
}

// OpenStore opens the configured backend and loads the registry. A load
// failure leaves an empty registry and is returned alongside a usable store.
func OpenStore(ctx context.Context, cfg *config.Config, log logx.Logger) (*tracking.Store, storage.Backend, error) {
	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	backend, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, nil, err
	}
	store := tracking.NewStore(backend, log.With(logx.String("comp", "tracking")))
	return store, backend, store.Load(ctx)
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.DriverOrDefault(),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
		KeyPrefix:   strings.TrimSpace(sc.KeyPrefix),
	}, nil
}

func commandsPerMinute(cfg *config.Config) int {
	switch n := cfg.Telegram.CommandsPerMinute; {
	case n == 0:
		return router.DefaultCommandsPerMinute
	case n < 0:
		return 0
	default:
		return n
	}
}

func logConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		OpsChat: logx.OpsChatConfig{
			Enabled:    l.OpsChat.Enabled,
			MinLevel:   l.OpsChat.MinLevel,
			RatePerSec: l.OpsChat.RatePerSec,
		},
	}
}

// opsTarget returns the log-forwarding chat; zero when unset or malformed.
func opsTarget(cfg *config.Config) transport.ChatTarget {
	ref := strings.TrimSpace(cfg.Telegram.OpsChat)
	if ref == "" {
		return transport.ChatTarget{}
	}
	t, err := transport.ParseChatTarget(ref)
	if err != nil {
		return transport.ChatTarget{}
	}
	return t
}

func riotRetrier(cfg *config.Config) (riot.Retrier, error) {
	base, err := config.ParseDurationOrDefault("riot.retry_base", cfg.Riot.RetryBase, riot.DefaultRetryBase)
	if err != nil {
		return riot.Retrier{}, err
	}
	max := cfg.Riot.RetryMax
	if max == 0 {
		max = riot.DefaultRetryMax
	}
	return riot.Retrier{MaxRetries: max, Base: base}, nil
}

func riotOptions(cfg *config.Config, retry riot.Retrier, log logx.Logger) (riot.Options, error) {
	timeout, err := config.ParseDurationField("riot.request_timeout", cfg.Riot.RequestTimeout)
	if err != nil {
		return riot.Options{}, err
	}
	return riot.Options{
		APIKey:      cfg.Riot.APIKey,
		RegionalURL: cfg.Riot.RegionalURL,
		PlatformURL: cfg.Riot.PlatformURL,
		Timeout:     timeout,
		Retry:       retry,
		Log:         log,
	}, nil
}

func dispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	base, err := config.ParseDurationField("dispatch.retry_base", d.RetryBase)
	if err != nil {
		return dispatch.Config{}, err
	}
	window, err := config.ParseDurationField("dispatch.dedup_window", d.DedupWindow)
	if err != nil {
		return dispatch.Config{}, err
	}
	retryMax := d.RetryMax
	if retryMax == 0 {
		retryMax = 2
	}
	return dispatch.Config{
		RatePerSec:  d.RatePerSec,
		RetryMax:    retryMax,
		RetryBase:   base,
		DedupWindow: window,
	}, nil
}

func pollerConfig(cfg *config.Config) (poller.Config, error) {
	spacing, err := config.ParseDurationOrDefault("poller.spacing", cfg.Poller.Spacing, poller.DefaultSpacing)
	if err != nil {
		return poller.Config{}, err
	}
	return poller.Config{Spacing: spacing, Precheck: cfg.Poller.Precheck}, nil
}

func minDuration(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("poller.min_duration", cfg.Poller.MinDuration, summary.DefaultMinDuration)
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Poller.Enabled, Timezone: cfg.Poller.Timezone}
}

func pollSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Poller.Schedule); s != "" {
		return s
	}
	return defaultSchedule
}

func serverConfig(cfg *config.Config) (server.Config, error) {
	o := cfg.Ops
	var durs [3]time.Duration
	for i, f := range []struct{ path, raw string }{
		{"ops.read_timeout", o.ReadTimeout},
		{"ops.write_timeout", o.WriteTimeout},
		{"ops.idle_timeout", o.IdleTimeout},
	} {
		d, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return server.Config{}, err
		}
		durs[i] = d
	}
	return server.Config{
		Enabled:              o.Enabled,
		Addr:                 o.Addr,
		Pprof:                o.Pprof,
		PprofPrefix:          o.PprofPrefix,
		Token:                o.Token,
		AllowInsecure:        o.AllowInsecure,
		ReadTimeout:          durs[0],
		WriteTimeout:         durs[1],
		IdleTimeout:          durs[2],
		MutexProfileFraction: o.MutexProfileFraction,
		BlockProfileRate:     o.BlockProfileRate,
	}, nil
}

// newDetector picks the detection strategy named by poller.detector.
func newDetector(cfg *config.Config, client *riot.Client) poller.Detector {
	if strings.EqualFold(strings.TrimSpace(cfg.Poller.Detector), poller.DetectorActiveGame) {
		return poller.NewActiveGameDetector(client, client)
	}
	return poller.LatestMatchDetector{Matches: client}
}

// applyDefaultDestination gives the configured tenant a destination when it
// has none. Without a pinned tenant the destination chat is its own tenant.
// With persist false the change stays in memory until the next save.
func applyDefaultDestination(ctx context.Context, cfg *config.Config, store *tracking.Store, persist bool, log logx.Logger) error {
	ref := strings.TrimSpace(cfg.Tenancy.DefaultDestination)
	if ref == "" {
		return nil
	}
	target, err := transport.ParseChatTarget(ref)
	if err != nil {
		return fmt.Errorf("tenancy.default_destination: %w", err)
	}
	tenant := strings.TrimSpace(cfg.Tenancy.TenantID)
	if tenant == "" {
		tenant = strconv.FormatInt(target.ChatID, 10)
	}
	if store.Get(tenant).Destination != "" {
		return nil
	}
	store.SetDestination(tenant, target.String())
	log.Info("default destination applied", logx.String("tenant", tenant), logx.String("destination", target.String()))
	if !persist {
		return nil
	}
	if err := store.Save(ctx); err != nil {
		log.Warn("default destination not persisted", logx.Err(err))
	}
	return nil
}
