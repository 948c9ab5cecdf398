package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchwatch/internal/config"
	"matchwatch/internal/poller"
	"matchwatch/internal/riot"
	"matchwatch/internal/storage"
	"matchwatch/internal/summary"
	"matchwatch/internal/tracking"
	"matchwatch/internal/transport/telegram/router"
	logx "matchwatch/pkg/logx"
)

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("poller:\n  enabled: true\n  schedule: 90s\n"), 0o600))
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("RIOT_API_KEY=RGAPI-dotenv\nTELEGRAM_TOKEN=123:abc\n"), 0o600))
	t.Setenv(config.EnvRiotAPIKey, "")
	t.Setenv(config.EnvTelegramToken, "")
	// godotenv never overrides variables that are already set, even to "".
	require.NoError(t, os.Unsetenv(config.EnvRiotAPIKey))
	require.NoError(t, os.Unsetenv(config.EnvTelegramToken))

	_, cfg, err := LoadConfig(cfgPath, true, envPath)
	require.NoError(t, err)
	assert.Equal(t, "RGAPI-dotenv", cfg.Riot.APIKey)
	assert.Equal(t, "90s", pollSchedule(cfg))
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"riot":{"api_key":"k"},"poller":{"detector":"psychic"}}`), 0o600))

	_, _, err := LoadConfig(cfgPath, false, filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poller.detector")
}

func TestComponentConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}

	retry, err := riotRetrier(cfg)
	require.NoError(t, err)
	assert.Equal(t, riot.DefaultRetryMax, retry.MaxRetries)
	assert.Equal(t, riot.DefaultRetryBase, retry.Base)

	pcfg, err := pollerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, poller.DefaultSpacing, pcfg.Spacing)

	md, err := minDuration(cfg)
	require.NoError(t, err)
	assert.Equal(t, summary.DefaultMinDuration, md)

	dcfg, err := dispatchConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, dcfg.RetryMax)

	sc, err := storageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "file", sc.Driver)

	assert.Equal(t, defaultSchedule, pollSchedule(cfg))
	assert.Equal(t, router.DefaultCommandsPerMinute, commandsPerMinute(cfg))
	cfg.Telegram.CommandsPerMinute = -1
	assert.Zero(t, commandsPerMinute(cfg))
	assert.True(t, opsTarget(cfg).IsZero())
}

func TestComponentConfigMapping(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{OpsChat: "-100:7"},
		Riot:     config.RiotConfig{APIKey: "RGAPI-test", RetryMax: 1, RetryBase: "250ms", RequestTimeout: "3s"},
		Poller:   config.PollerConfig{Enabled: true, Spacing: "0s", MinDuration: "10m", Detector: "active_game", Timezone: "UTC"},
		Storage:  config.StorageConfig{Driver: "SQLite", Path: " ./x.db ", BusyTimeout: "2s"},
		Ops:      config.OpsConfig{Enabled: true, Addr: "127.0.0.1:0", ReadTimeout: "5s"},
	}

	retry, err := riotRetrier(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, retry.Base)

	ropts, err := riotOptions(cfg, retry, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, ropts.Timeout)

	pcfg, err := pollerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, poller.DefaultSpacing, pcfg.Spacing, "zero spacing falls back to the default")

	md, err := minDuration(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, md)

	sc, err := storageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, storage.Config{Driver: "sqlite", Path: "./x.db", BusyTimeout: 2 * time.Second}, sc)

	scfg, err := serverConfig(cfg)
	require.NoError(t, err)
	assert.True(t, scfg.Enabled)
	assert.Equal(t, 5*time.Second, scfg.ReadTimeout)

	assert.Equal(t, int64(-100), opsTarget(cfg).ChatID)
	assert.Equal(t, 7, opsTarget(cfg).ThreadID)
	assert.True(t, schedulerConfig(cfg).Enabled)

	client, err := riot.New(ropts)
	require.NoError(t, err)
	assert.Equal(t, poller.DetectorActiveGame, newDetector(cfg, client).Name())
	cfg.Poller.Detector = ""
	assert.Equal(t, poller.DetectorLatestMatch, newDetector(cfg, client).Name())
}

func TestApplyDefaultDestination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("pinned tenant", func(t *testing.T) {
		t.Parallel()
		mem := storage.NewMemory()
		store := tracking.NewStore(mem, logx.Nop())
		cfg := &config.Config{Tenancy: config.TenancyConfig{TenantID: "guild", DefaultDestination: "-100:3"}}

		require.NoError(t, applyDefaultDestination(ctx, cfg, store, true, logx.Nop()))
		assert.Equal(t, "-100:3", store.Get("guild").Destination)
		assert.Equal(t, 1, mem.Saves())
	})

	t.Run("chat is its own tenant", func(t *testing.T) {
		t.Parallel()
		store := tracking.NewStore(storage.NewMemory(), logx.Nop())
		cfg := &config.Config{Tenancy: config.TenancyConfig{DefaultDestination: "-100"}}

		require.NoError(t, applyDefaultDestination(ctx, cfg, store, true, logx.Nop()))
		assert.Equal(t, "-100", store.Get("-100").Destination)
	})

	t.Run("existing destination wins", func(t *testing.T) {
		t.Parallel()
		mem := storage.NewMemory()
		store := tracking.NewStore(mem, logx.Nop())
		store.SetDestination("guild", "-5")
		cfg := &config.Config{Tenancy: config.TenancyConfig{TenantID: "guild", DefaultDestination: "-100"}}

		require.NoError(t, applyDefaultDestination(ctx, cfg, store, true, logx.Nop()))
		assert.Equal(t, "-5", store.Get("guild").Destination)
		assert.Zero(t, mem.Saves())
	})

	t.Run("unreadable state is not overwritten", func(t *testing.T) {
		t.Parallel()
		mem := storage.NewMemory()
		store := tracking.NewStore(mem, logx.Nop())
		cfg := &config.Config{Tenancy: config.TenancyConfig{TenantID: "guild", DefaultDestination: "-100"}}

		require.NoError(t, applyDefaultDestination(ctx, cfg, store, false, logx.Nop()))
		assert.Equal(t, "-100", store.Get("guild").Destination)
		assert.Zero(t, mem.Saves())
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		store := tracking.NewStore(storage.NewMemory(), logx.Nop())
		cfg := &config.Config{Tenancy: config.TenancyConfig{DefaultDestination: "general"}}
		require.Error(t, applyDefaultDestination(ctx, cfg, store, true, logx.Nop()))
	})
}

func TestOpenStoreMemory(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "memory"}}
	store, backend, err := OpenStore(context.Background(), cfg, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	tenants, entities := store.Counts()
	assert.Zero(t, tenants)
	assert.Zero(t, entities)
}

func TestStorageProblem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Empty(t, storageProblem(ctx, storage.NewMemory()))

	mr := miniredis.RunT(t)
	rs := storage.NewRedis(&redis.Options{Addr: mr.Addr()}, "mwtest")
	t.Cleanup(func() { _ = rs.Close() })
	assert.Empty(t, storageProblem(ctx, rs))

	mr.Close()
	assert.Contains(t, storageProblem(ctx, rs), "storage unreachable")
}
