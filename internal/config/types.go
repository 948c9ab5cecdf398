package config

import "strings"

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "1m") and are parsed by
// the consuming component with ParseDurationOrDefault.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Riot     RiotConfig     `json:"riot"`
	Poller   PollerConfig   `json:"poller"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Tenancy  TenancyConfig  `json:"tenancy,omitempty"`
	Storage  StorageConfig  `json:"storage"`
	Ops      OpsConfig      `json:"ops,omitempty"`
}

type TelegramConfig struct {
	// Token may be supplied through TELEGRAM_TOKEN instead.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// OpsChat receives forwarded log lines: "<chat>" or "<chat>:<thread>".
	OpsChat     string `json:"ops_chat,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// CommandsPerMinute caps commands per tenant. 0 uses the default, -1 disables.
	CommandsPerMinute int `json:"commands_per_minute,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	OpsChat LoggingOpsChat `json:"ops_chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingOpsChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RiotConfig configures the upstream match-data API client.
//
// The API key is read once at startup. A reload that changes it is logged and
// ignored until the process restarts.
type RiotConfig struct {
	APIKey        string `json:"api_key"`
	RegionalURL   string `json:"regional_url,omitempty"`    // default: https://europe.api.riotgames.com
	PlatformURL   string `json:"platform_url,omitempty"`    // default: https://eun1.api.riotgames.com
	DataDragonURL string `json:"data_dragon_url,omitempty"` // default: https://ddragon.leagueoflegends.com
	Locale        string `json:"locale,omitempty"`          // default: en_US

	RequestTimeout string `json:"request_timeout,omitempty"` // default: 10s
	RetryMax       int    `json:"retry_max,omitempty"`       // default: 4
	RetryBase      string `json:"retry_base,omitempty"`      // default: 2s
}

// PollerConfig controls the poll cycle.
//
// Defaults:
//   - schedule: "60s" (anything ParseSchedule accepts)
//   - spacing: "1.5s" between entity issuances
//   - min_duration: "300s"; shorter matches are suppressed
//   - detector: "latest_match" or "active_game"
type PollerConfig struct {
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule,omitempty"`
	Spacing     string `json:"spacing,omitempty"`
	MinDuration string `json:"min_duration,omitempty"`
	Detector    string `json:"detector,omitempty"`
	// Precheck pings the platform status endpoint before each cycle.
	Precheck bool   `json:"precheck,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type DispatchConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"` // default: 3
	RetryMax    int    `json:"retry_max,omitempty"`    // default: 2
	RetryBase   string `json:"retry_base,omitempty"`   // default: 500ms
	DedupWindow string `json:"dedup_window,omitempty"` // default: 24h
}

// TenancyConfig maps chats to tenants.
//
// With TenantID empty every chat is its own tenant. DefaultDestination is
// applied to the pinned tenant at startup when it has none.
type TenancyConfig struct {
	TenantID           string `json:"tenant_id,omitempty"`
	DefaultDestination string `json:"default_destination,omitempty"`
}

// StorageConfig selects the tracking-state backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./matchwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | redis | postgres | memory
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // redis URL or postgres DSN (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"`
	KeyPrefix   string `json:"key_prefix,omitempty"` // redis only, default "matchwatch"
}

// OpsConfig controls the operator HTTP server (health, metrics, status, pprof).
//
// Prefer binding to loopback. A non-loopback Addr needs a Token or AllowInsecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`         // default: "127.0.0.1:6060"
	PprofPrefix   string `json:"pprof_prefix,omitempty"` // default: "/debug/pprof/"
	Pprof         bool   `json:"pprof,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// DriverOrDefault returns the normalized storage driver, "file" when unset.
func (s StorageConfig) DriverOrDefault() string {
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	if d == "" {
		return "file"
	}
	return d
}
