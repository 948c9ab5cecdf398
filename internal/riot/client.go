// Package riot is a client for the Riot Games account, match, spectator and
// status APIs.
package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "matchwatch/pkg/logx"
)

const (
	DefaultRegionalURL = "https://europe.api.riotgames.com"
	DefaultPlatformURL = "https://eun1.api.riotgames.com"
	defaultTimeout     = 10 * time.Second
	maxErrorBody       = 512
)

type Options struct {
	APIKey      string
	RegionalURL string
	PlatformURL string
	Timeout     time.Duration
	Retry       Retrier
	HTTPClient  *http.Client
	Log         logx.Logger
}

// Client issues authenticated requests. Transient failures are retried by
// the configured Retrier; 404 maps to ErrNotFound.
type Client struct {
	apiKey   string
	regional string
	platform string
	http     *http.Client
	retry    Retrier
	log      logx.Logger
}

func New(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, ErrNoAPIKey
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	retry := opts.Retry
	if retry.Log.IsZero() {
		retry.Log = log
	}
	return &Client{
		apiKey:   key,
		regional: baseOrDefault(opts.RegionalURL, DefaultRegionalURL),
		platform: baseOrDefault(opts.PlatformURL, DefaultPlatformURL),
		http:     hc,
		retry:    retry,
		log:      log,
	}, nil
}

func baseOrDefault(v, def string) string {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	if v == "" {
		return def
	}
	return v
}

// AccountByRiotID looks up an account by game name and tag line.
func (c *Client) AccountByRiotID(ctx context.Context, gameName, tagLine string) (*Account, error) {
	path := "/riot/account/v1/accounts/by-riot-id/" + url.PathEscape(gameName) + "/" + url.PathEscape(tagLine)
	var acc Account
	if err := c.call(ctx, "account.by-riot-id", c.regional+path, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// LatestMatchID returns the most recent match id, ok=false when the history is empty.
func (c *Client) LatestMatchID(ctx context.Context, puuid string) (string, bool, error) {
	path := "/lol/match/v5/matches/by-puuid/" + url.PathEscape(puuid) + "/ids?start=0&count=1"
	var ids []string
	if err := c.call(ctx, "match.ids", c.regional+path, &ids); err != nil {
		return "", false, err
	}
	if len(ids) == 0 || ids[0] == "" {
		return "", false, nil
	}
	return ids[0], true, nil
}

func (c *Client) MatchDetail(ctx context.Context, matchID string) (*MatchDetail, error) {
	var d MatchDetail
	if err := c.call(ctx, "match.detail", c.regional+"/lol/match/v5/matches/"+url.PathEscape(matchID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ActiveGame returns the game the player is in, ok=false when not in game.
func (c *Client) ActiveGame(ctx context.Context, puuid string) (*ActiveGame, bool, error) {
	var g ActiveGame
	err := c.call(ctx, "spectator.active-game", c.platform+"/lol/spectator/v5/active-games/by-summoner/"+url.PathEscape(puuid), &g)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &g, true, nil
}

// Ping checks the platform status endpoint once, without retries.
// Network failures and 5xx responses come back as *ConnectivityError.
func (c *Client) Ping(ctx context.Context) error {
	err := c.get(ctx, "status.platform-data", c.platform+"/lol/status/v4/platform-data", nil)
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode < 500 {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ConnectivityError{Err: err}
}

func (c *Client) call(ctx context.Context, op, rawURL string, out any) error {
	return c.retry.Do(ctx, op, func(ctx context.Context) error {
		return c.get(ctx, op, rawURL, out)
	})
}

// get performs one request and decodes a 200 body into out (nil discards it).
func (c *Client) get(ctx context.Context, op, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("X-Riot-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug("riot request",
		logx.String("op", op),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(started)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
