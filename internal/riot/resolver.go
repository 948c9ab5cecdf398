package riot

import (
	"context"
	"strings"
)

// SplitRiotID splits "Name#Tag". Both parts must be non-empty.
func SplitRiotID(displayID string) (name, tag string, err error) {
	name, tag, ok := strings.Cut(strings.TrimSpace(displayID), "#")
	name, tag = strings.TrimSpace(name), strings.TrimSpace(tag)
	if !ok || name == "" || tag == "" {
		return "", "", ErrInvalidRiotID
	}
	return name, tag, nil
}

// Resolver maps a Riot ID to its PUUID.
type Resolver struct {
	client *Client
}

func NewResolver(c *Client) *Resolver { return &Resolver{client: c} }

// Resolve returns ErrInvalidRiotID for malformed input and ErrNotFound when
// the account does not exist.
func (r *Resolver) Resolve(ctx context.Context, displayID string) (string, error) {
	name, tag, err := SplitRiotID(displayID)
	if err != nil {
		return "", err
	}
	acc, err := r.client.AccountByRiotID(ctx, name, tag)
	if err != nil {
		return "", err
	}
	if acc.PUUID == "" {
		return "", ErrNotFound
	}
	return acc.PUUID, nil
}
