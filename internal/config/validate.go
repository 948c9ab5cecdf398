package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"matchwatch/internal/task/scheduler"
)

var ErrMissingCredential = errors.New("missing credential")

// Validate reports every problem in cfg at once.
// requireTelegram is false for CLI commands that never talk to Telegram.
func Validate(cfg *Config, requireTelegram bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var result *multierror.Error

	if strings.TrimSpace(cfg.Riot.APIKey) == "" {
		result = multierror.Append(result, fmt.Errorf("riot.api_key: %w (set %s)", ErrMissingCredential, EnvRiotAPIKey))
	}
	if requireTelegram && strings.TrimSpace(cfg.Telegram.Token) == "" {
		result = multierror.Append(result, fmt.Errorf("telegram.token: %w (set %s)", ErrMissingCredential, EnvTelegramToken))
	}
	if cfg.Riot.RetryMax < 0 {
		result = multierror.Append(result, errors.New("riot.retry_max: must be >= 0"))
	}

	durations := map[string]string{
		"telegram.poll_timeout": cfg.Telegram.PollTimeout,
		"riot.request_timeout":  cfg.Riot.RequestTimeout,
		"riot.retry_base":       cfg.Riot.RetryBase,
		"poller.spacing":        cfg.Poller.Spacing,
		"poller.min_duration":   cfg.Poller.MinDuration,
		"dispatch.retry_base":   cfg.Dispatch.RetryBase,
		"dispatch.dedup_window": cfg.Dispatch.DedupWindow,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
		"ops.read_timeout":      cfg.Ops.ReadTimeout,
		"ops.write_timeout":     cfg.Ops.WriteTimeout,
		"ops.idle_timeout":      cfg.Ops.IdleTimeout,
	}
	for _, path := range sortedKeys(durations) {
		if _, err := ParseDurationField(path, durations[path]); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if sched := strings.TrimSpace(cfg.Poller.Schedule); sched != "" {
		if _, err := scheduler.ParseSchedule(sched); err != nil {
			result = multierror.Append(result, fmt.Errorf("poller.schedule: %w", err))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Poller.Detector)) {
	case "", "latest_match", "active_game":
	default:
		result = multierror.Append(result, fmt.Errorf("poller.detector: unknown detector %q", cfg.Poller.Detector))
	}
	if tz := strings.TrimSpace(cfg.Poller.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			result = multierror.Append(result, fmt.Errorf("poller.timezone: %w", err))
		}
	}

	switch cfg.Storage.DriverOrDefault() {
	case "file", "sqlite", "memory":
	case "redis", "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			result = multierror.Append(result, fmt.Errorf("storage.dsn: required for driver %q (set %s)", cfg.Storage.Driver, EnvStoreDSN))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if ref := strings.TrimSpace(cfg.Telegram.OpsChat); ref != "" {
		if err := checkChatRef(ref); err != nil {
			result = multierror.Append(result, fmt.Errorf("telegram.ops_chat: %w", err))
		}
	}
	if ref := strings.TrimSpace(cfg.Tenancy.DefaultDestination); ref != "" {
		if err := checkChatRef(ref); err != nil {
			result = multierror.Append(result, fmt.Errorf("tenancy.default_destination: %w", err))
		}
	}

	return result.ErrorOrNil()
}

// checkChatRef mirrors transport.ParseChatTarget without importing transport.
func checkChatRef(ref string) error {
	chat, thread, hasThread := strings.Cut(ref, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat id %q", ref)
	}
	if hasThread {
		if n, err := strconv.Atoi(strings.TrimSpace(thread)); err != nil || n < 0 {
			return fmt.Errorf("invalid thread id %q", ref)
		}
	}
	return nil
}
