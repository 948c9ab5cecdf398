package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"matchwatch/internal/riot"
	"matchwatch/internal/transport"
	logx "matchwatch/pkg/logx"
)

type TrackResult int

const (
	TrackInvalid TrackResult = iota
	TrackAlready
	TrackNotFound
	TrackOK
)

func (r TrackResult) String() string {
	switch r {
	case TrackAlready:
		return "already"
	case TrackNotFound:
		return "not_found"
	case TrackOK:
		return "ok"
	default:
		return "invalid"
	}
}

type UntrackResult int

const (
	UntrackNotTracked UntrackResult = iota
	UntrackOK
)

type DestinationResult int

const (
	DestinationInvalid DestinationResult = iota
	DestinationOK
)

// IdentityResolver maps a display id to the upstream internal id.
// It returns riot.ErrNotFound when the identity does not exist.
type IdentityResolver interface {
	Resolve(ctx context.Context, displayID string) (string, error)
}

// Commands is the command surface the chat front-end calls into. Every
// mutating command persists the registry before returning.
type Commands struct {
	store    *Store
	resolver IdentityResolver
	chats    transport.ChatResolver
	log      logx.Logger

	onUntrack func(tenant, displayID string)
}

// NewCommands wires the command surface. chats may be nil, in which case a
// destination is only checked syntactically.
func NewCommands(store *Store, resolver IdentityResolver, chats transport.ChatResolver, log logx.Logger) *Commands {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Commands{store: store, resolver: resolver, chats: chats, log: log}
}

// Track resolves displayID and starts tracking it. A transient upstream
// failure is returned as an error with TrackInvalid.
func (c *Commands) Track(ctx context.Context, tenant, displayID string) (TrackResult, error) {
	displayID = strings.TrimSpace(displayID)
	if _, _, err := riot.SplitRiotID(displayID); err != nil {
		return TrackInvalid, nil
	}
	if _, ok := c.store.Get(tenant).Entities[displayID]; ok {
		return TrackAlready, nil
	}

	puuid, err := c.resolver.Resolve(ctx, displayID)
	if errors.Is(err, riot.ErrNotFound) {
		return TrackNotFound, nil
	}
	if err != nil {
		return TrackInvalid, fmt.Errorf("resolve %s: %w", displayID, err)
	}

	var already bool
	_ = c.store.Update(tenant, func(t *Tenant) error {
		if _, ok := t.Entities[displayID]; ok {
			already = true
			return nil
		}
		t.Entities[displayID] = Entity{DisplayID: displayID, InternalID: puuid}
		return nil
	})
	if already {
		return TrackAlready, nil
	}
	c.log.Info("entity tracked", logx.String("tenant", tenant), logx.String("entity", displayID))
	return TrackOK, c.store.Save(ctx)
}

// OnUntrack registers fn to run after an entity stops being tracked. It is
// not safe to call concurrently with Untrack.
func (c *Commands) OnUntrack(fn func(tenant, displayID string)) {
	c.onUntrack = fn
}

func (c *Commands) Untrack(ctx context.Context, tenant, displayID string) (UntrackResult, error) {
	displayID = strings.TrimSpace(displayID)
	if !c.store.RemoveEntity(tenant, displayID) {
		return UntrackNotTracked, nil
	}
	if c.onUntrack != nil {
		c.onUntrack(tenant, displayID)
	}
	c.log.Info("entity untracked", logx.String("tenant", tenant), logx.String("entity", displayID))
	return UntrackOK, c.store.Save(ctx)
}

// List returns the tenant's tracked display ids in ascending order.
func (c *Commands) List(tenant string) []string {
	t := c.store.Get(tenant)
	out := make([]string, 0, len(t.Entities))
	for id := range t.Entities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetDestination validates ref and stores it in canonical form.
func (c *Commands) SetDestination(ctx context.Context, tenant, ref string) (DestinationResult, error) {
	target, err := transport.ParseChatTarget(ref)
	if err != nil {
		return DestinationInvalid, nil
	}
	if c.chats != nil {
		if err := c.chats.ResolveChat(ctx, target); err != nil {
			c.log.Debug("destination rejected", logx.String("tenant", tenant), logx.String("ref", ref), logx.Err(err))
			return DestinationInvalid, nil
		}
	}
	c.store.SetDestination(tenant, target.String())
	c.log.Info("destination set", logx.String("tenant", tenant), logx.String("destination", target.String()))
	return DestinationOK, c.store.Save(ctx)
}

// Destination returns the tenant's destination, "" if unset.
func (c *Commands) Destination(tenant string) string {
	return c.store.Get(tenant).Destination
}
