package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a process-local backend. FailSave, when set, is returned by Save
// without touching the stored snapshot.
type Memory struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	FailSave error
	FailLoad error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoad != nil {
		return Snapshot{}, m.FailLoad
	}
	return decodeSnapshot(m.data)
}

func (m *Memory) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	if snap == nil {
		snap = Snapshot{}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.data = b
	m.saves++
	return nil
}

// Saves reports how many successful saves happened.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error { return nil }
