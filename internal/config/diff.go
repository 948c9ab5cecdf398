package config

import (
	"reflect"
	"sort"
	"strings"

	logx "matchwatch/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe log
// attributes describing them. Secrets (tokens, API key, DSN) are reported
// only as "changed" or "set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || trimNE(ot.PollTimeout, nt.PollTimeout) || trimNE(ot.OpsChat, nt.OpsChat) ||
		ot.CommandsPerMinute != nt.CommandsPerMinute || !reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.ops_chat_set", strings.TrimSpace(nt.OpsChat) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.ops_chat_enabled", newCfg.Logging.OpsChat.Enabled),
		)
	}

	or, nr := oldCfg.Riot, newCfg.Riot
	oKey, nKey := or.APIKey, nr.APIKey
	or.APIKey, nr.APIKey = "", ""
	if oKey != nKey || !reflect.DeepEqual(or, nr) {
		changed = append(changed, "riot")
		attrs = append(attrs,
			logx.Bool("riot.api_key_changed", oKey != nKey),
			logx.String("riot.regional_url", nr.RegionalURL),
			logx.Int("riot.retry_max", nr.RetryMax),
			logx.String("riot.retry_base", nr.RetryBase),
		)
	}

	if !reflect.DeepEqual(oldCfg.Poller, newCfg.Poller) {
		changed = append(changed, "poller")
		attrs = append(attrs,
			logx.Bool("poller.enabled", newCfg.Poller.Enabled),
			logx.String("poller.schedule", newCfg.Poller.Schedule),
			logx.String("poller.spacing", newCfg.Poller.Spacing),
			logx.String("poller.detector", newCfg.Poller.Detector),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Int("dispatch.retry_max", newCfg.Dispatch.RetryMax),
		)
	}

	if oldCfg.Tenancy != newCfg.Tenancy {
		changed = append(changed, "tenancy")
		attrs = append(attrs,
			logx.String("tenancy.tenant_id", newCfg.Tenancy.TenantID),
			logx.Bool("tenancy.default_destination_set", newCfg.Tenancy.DefaultDestination != ""),
		)
	}

	ost, nst := oldCfg.Storage, newCfg.Storage
	if ost.DriverOrDefault() != nst.DriverOrDefault() || trimNE(ost.Path, nst.Path) || ost.DSN != nst.DSN ||
		trimNE(ost.BusyTimeout, nst.BusyTimeout) || trimNE(ost.KeyPrefix, nst.KeyPrefix) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nst.DriverOrDefault()),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
			logx.Bool("storage.dsn_changed", ost.DSN != nst.DSN),
		)
	}

	oo, no := oldCfg.Ops, newCfg.Ops
	oTok, nTok := oo.Token, no.Token
	oo.Token, no.Token = "", ""
	if oo != no || (oTok != "") != (nTok != "") {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", no.Enabled),
			logx.String("ops.addr", strings.TrimSpace(no.Addr)),
			logx.Bool("ops.pprof", no.Pprof),
			logx.Bool("ops.token_set", nTok != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func trimNE(a, b string) bool { return strings.TrimSpace(a) != strings.TrimSpace(b) }
