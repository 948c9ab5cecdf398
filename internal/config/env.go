package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvRiotAPIKey         = "RIOT_API_KEY"
	EnvTelegramToken      = "TELEGRAM_TOKEN"
	EnvStorePath          = "MATCHWATCH_STORE_PATH"
	EnvStoreDSN           = "MATCHWATCH_STORE_DSN"
	EnvDefaultDestination = "MATCHWATCH_DEFAULT_DESTINATION"
	EnvTenantID           = "MATCHWATCH_TENANT_ID"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Riot.APIKey, EnvRiotAPIKey)
	set(&cfg.Telegram.Token, EnvTelegramToken)
	set(&cfg.Storage.Path, EnvStorePath)
	set(&cfg.Storage.DSN, EnvStoreDSN)
	set(&cfg.Tenancy.DefaultDestination, EnvDefaultDestination)
	set(&cfg.Tenancy.TenantID, EnvTenantID)
}
