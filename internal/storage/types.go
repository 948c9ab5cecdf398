package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Backend loads and replaces the persisted registry.
type Backend interface {
	// Load returns an empty Snapshot when nothing has been saved yet.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the persisted registry with snap atomically.
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Pinger is implemented by backends that talk to a server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Snapshot maps tenant id to its persisted state.
type Snapshot map[string]TenantState

type TenantState struct {
	TrackedEntities map[string]EntityState `json:"trackedEntities"`
	Destination     *string                `json:"destination"`
}

type EntityState struct {
	InternalID  *string `json:"internalId"`
	LastMatchID *string `json:"lastMatchId"`
}

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	KeyPrefix   string        // redis only
}

const (
	DefaultFilePath   = "./matchwatch_state.json"
	DefaultSQLitePath = "./matchwatch.db"
	DefaultKeyPrefix  = "matchwatch"
)

// StrPtr returns nil for "" so optional fields encode as JSON null.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Str dereferences p, "" for nil.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func encodeTenant(ts TenantState) ([]byte, error) {
	if ts.TrackedEntities == nil {
		ts.TrackedEntities = map[string]EntityState{}
	}
	return json.Marshal(ts)
}

func decodeTenant(b []byte) (TenantState, error) {
	var ts TenantState
	if err := json.Unmarshal(b, &ts); err != nil {
		return TenantState{}, err
	}
	if ts.TrackedEntities == nil {
		ts.TrackedEntities = map[string]EntityState{}
	}
	return ts, nil
}

func decodeSnapshot(b []byte) (Snapshot, error) {
	snap := Snapshot{}
	if len(b) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, err
	}
	for id, ts := range snap {
		if ts.TrackedEntities == nil {
			ts.TrackedEntities = map[string]EntityState{}
			snap[id] = ts
		}
	}
	return snap, nil
}
