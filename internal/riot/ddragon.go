package riot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDataDragonURL = "https://ddragon.leagueoflegends.com"
	DefaultLocale        = "en_US"
)

// DataDragon fetches static game data. It needs no API key.
type DataDragon struct {
	base   string
	locale string
	http   *http.Client
	retry  Retrier
}

func NewDataDragon(baseURL, locale string, hc *http.Client, retry Retrier) *DataDragon {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DefaultLocale
	}
	return &DataDragon{
		base:   baseOrDefault(baseURL, DefaultDataDragonURL),
		locale: locale,
		http:   hc,
		retry:  retry,
	}
}

type championFile struct {
	Data map[string]struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"data"`
}

// ChampionNames returns champion id to display name for the latest patch.
func (d *DataDragon) ChampionNames(ctx context.Context) (map[int]string, string, error) {
	var versions []string
	if err := d.fetch(ctx, "ddragon.versions", d.base+"/api/versions.json", &versions); err != nil {
		return nil, "", err
	}
	if len(versions) == 0 {
		return nil, "", fmt.Errorf("ddragon.versions: empty version list")
	}
	version := versions[0]

	var file championFile
	u := d.base + "/cdn/" + version + "/data/" + d.locale + "/champion.json"
	if err := d.fetch(ctx, "ddragon.champions", u, &file); err != nil {
		return nil, version, err
	}
	out := make(map[int]string, len(file.Data))
	for id, c := range file.Data {
		key, err := strconv.Atoi(c.Key)
		if err != nil {
			continue
		}
		name := c.Name
		if name == "" {
			name = id
		}
		out[key] = name
	}
	return out, version, nil
}

func (d *DataDragon) fetch(ctx context.Context, op, u string, out any) error {
	return d.retry.Do(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		resp, err := d.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &StatusError{Op: op, StatusCode: resp.StatusCode}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}
		return nil
	})
}
