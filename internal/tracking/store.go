// Package tracking holds the per-tenant registry of tracked players and the
// commands that mutate it.
package tracking

import (
	"context"
	"sort"
	"sync"

	"matchwatch/internal/storage"
	logx "matchwatch/pkg/logx"
)

// Entity is one tracked player inside a tenant.
type Entity struct {
	DisplayID   string // "Name#Tag"
	InternalID  string // PUUID, "" until resolved
	LastMatchID string // "" until a baseline is recorded
}

// Tenant is a copy of one tenant's record.
type Tenant struct {
	ID          string
	Destination string // "" when unset
	Entities    map[string]Entity
}

// SortedEntities returns the entities ordered by display id.
func (t Tenant) SortedEntities() []Entity {
	out := make([]Entity, 0, len(t.Entities))
	for _, e := range t.Entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayID < out[j].DisplayID })
	return out
}

type tenantRecord struct {
	mu          sync.Mutex
	destination string
	entities    map[string]Entity
}

func (r *tenantRecord) copyLocked(id string) Tenant {
	ents := make(map[string]Entity, len(r.entities))
	for k, v := range r.entities {
		ents[k] = v
	}
	return Tenant{ID: id, Destination: r.destination, Entities: ents}
}

// Store is the in-memory registry backed by a storage.Backend.
//
// Each tenant has its own mutex; command handlers and the poller serialize on
// it. Update applies changes to a copy and swaps it in only on success.
type Store struct {
	backend storage.Backend
	log     logx.Logger

	mu      sync.RWMutex
	tenants map[string]*tenantRecord

	persistMu sync.Mutex
}

func NewStore(backend storage.Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		backend: backend,
		log:     log,
		tenants: map[string]*tenantRecord{},
	}
}

// Load replaces the registry with the persisted snapshot. On error the
// registry is empty and a *StoreReadError is returned.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.backend.Load(ctx)
	if err != nil {
		s.mu.Lock()
		s.tenants = map[string]*tenantRecord{}
		s.mu.Unlock()
		return &StoreReadError{Err: err}
	}

	tenants := make(map[string]*tenantRecord, len(snap))
	for id, ts := range snap {
		rec := &tenantRecord{
			destination: storage.Str(ts.Destination),
			entities:    make(map[string]Entity, len(ts.TrackedEntities)),
		}
		for displayID, es := range ts.TrackedEntities {
			rec.entities[displayID] = Entity{
				DisplayID:   displayID,
				InternalID:  storage.Str(es.InternalID),
				LastMatchID: storage.Str(es.LastMatchID),
			}
		}
		tenants[id] = rec
	}
	s.mu.Lock()
	s.tenants = tenants
	s.mu.Unlock()
	return nil
}

// Save persists every tenant. Concurrent calls are serialized.
func (s *Store) Save(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.backend.Save(ctx, s.snapshot()); err != nil {
		return &StoreWriteError{Err: err}
	}
	return nil
}

func (s *Store) snapshot() storage.Snapshot {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tenants))
	recs := make([]*tenantRecord, 0, len(s.tenants))
	for id, rec := range s.tenants {
		ids = append(ids, id)
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	snap := make(storage.Snapshot, len(ids))
	for i, rec := range recs {
		rec.mu.Lock()
		ts := storage.TenantState{
			TrackedEntities: make(map[string]storage.EntityState, len(rec.entities)),
			Destination:     storage.StrPtr(rec.destination),
		}
		for displayID, e := range rec.entities {
			ts.TrackedEntities[displayID] = storage.EntityState{
				InternalID:  storage.StrPtr(e.InternalID),
				LastMatchID: storage.StrPtr(e.LastMatchID),
			}
		}
		rec.mu.Unlock()
		snap[ids[i]] = ts
	}
	return snap
}

func (s *Store) record(tenant string) *tenantRecord {
	s.mu.RLock()
	rec, ok := s.tenants[tenant]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.tenants[tenant]; ok {
		return rec
	}
	rec = &tenantRecord{entities: map[string]Entity{}}
	s.tenants[tenant] = rec
	return rec
}

// Get returns a copy of the tenant, creating it if absent.
func (s *Store) Get(tenant string) Tenant {
	rec := s.record(tenant)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.copyLocked(tenant)
}

// Update runs fn on a copy of the tenant under its lock and commits the copy
// only if fn returns nil.
func (s *Store) Update(tenant string, fn func(t *Tenant) error) error {
	rec := s.record(tenant)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	cp := rec.copyLocked(tenant)
	if err := fn(&cp); err != nil {
		return err
	}
	if cp.Entities == nil {
		cp.Entities = map[string]Entity{}
	}
	rec.destination = cp.Destination
	rec.entities = cp.Entities
	return nil
}

func (s *Store) UpsertEntity(tenant string, e Entity) {
	_ = s.Update(tenant, func(t *Tenant) error {
		t.Entities[e.DisplayID] = e
		return nil
	})
}

// RemoveEntity reports whether the entity was tracked.
func (s *Store) RemoveEntity(tenant, displayID string) bool {
	err := s.Update(tenant, func(t *Tenant) error {
		if _, ok := t.Entities[displayID]; !ok {
			return ErrEntityNotFound
		}
		delete(t.Entities, displayID)
		return nil
	})
	return err == nil
}

// Evict drops an entity whose identity no longer resolves upstream.
func (s *Store) Evict(tenant, displayID string) bool {
	return s.RemoveEntity(tenant, displayID)
}

// SetDestination stores ref verbatim; callers validate it first.
func (s *Store) SetDestination(tenant, ref string) {
	_ = s.Update(tenant, func(t *Tenant) error {
		t.Destination = ref
		return nil
	})
}

// SetInternalID caches a resolved identity. It is a no-op if the entity was
// removed in the meantime.
func (s *Store) SetInternalID(tenant, displayID, internalID string) bool {
	err := s.Update(tenant, func(t *Tenant) error {
		e, ok := t.Entities[displayID]
		if !ok {
			return ErrEntityNotFound
		}
		e.InternalID = internalID
		t.Entities[displayID] = e
		return nil
	})
	return err == nil
}

// AdvancePointer sets LastMatchID to `to` only if it still equals `from`.
func (s *Store) AdvancePointer(tenant, displayID, from, to string) bool {
	err := s.Update(tenant, func(t *Tenant) error {
		e, ok := t.Entities[displayID]
		if !ok {
			return ErrEntityNotFound
		}
		if e.LastMatchID != from {
			return errStalePointer
		}
		e.LastMatchID = to
		t.Entities[displayID] = e
		return nil
	})
	return err == nil
}

// Tenants returns every tenant id, sorted.
func (s *Store) Tenants() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// TenantsWithDestination returns copies of tenants that have a destination, sorted by id.
func (s *Store) TenantsWithDestination() []Tenant {
	var out []Tenant
	for _, id := range s.Tenants() {
		t := s.Get(id)
		if t.Destination != "" {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns the number of tenants and tracked entities.
func (s *Store) Counts() (tenants, entities int) {
	s.mu.RLock()
	recs := make([]*tenantRecord, 0, len(s.tenants))
	for _, rec := range s.tenants {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()
	for _, rec := range recs {
		rec.mu.Lock()
		entities += len(rec.entities)
		rec.mu.Unlock()
	}
	return len(recs), entities
}
