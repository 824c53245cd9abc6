package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"learningodyssey/internal/adventure"
)

type memoryRecord struct {
	record      Record
	lastTouched time.Time
}

// MemoryStore is an in-memory State Store Adapter used for tests and for
// local runs with no Redis address and FILE_STORE_PATH set empty — the same
// role the teacher's MemoryDialogStore/FileStore pair plays for auth
// sessions, selected over a real backing store by deployment config rather
// than by this package.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]memoryRecord
	active    map[string]string
	ttl       time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]memoryRecord),
		active:    make(map[string]string),
		ttl:       ttl,
	}
}

func (s *MemoryStore) Store(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string, isComplete bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateID, ok := s.active[clientUUID]
	if !ok {
		stateID = uuid.NewString()
	}

	snap := recordFrom(state)
	rec := Record{
		StateID:     stateID,
		Environment: environment,
		UserID:      stringifyUserID(snap),
		ClientUUID:  clientUUID,
		IsComplete:  isComplete,
		Snapshot:    snap,
		UpdatedAt:   time.Now().UTC(),
	}

	if existing, ok := s.snapshots[stateID]; ok {
		rec.CreatedAt = existing.record.CreatedAt
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}

	s.snapshots[stateID] = memoryRecord{record: rec, lastTouched: rec.UpdatedAt}

	if isComplete {
		delete(s.active, clientUUID)
	} else {
		s.active[clientUUID] = stateID
	}

	return stateID, nil
}

func (s *MemoryStore) Load(ctx context.Context, stateID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.snapshots[stateID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.ttl > 0 && time.Since(rec.lastTouched) > s.ttl {
		delete(s.snapshots, stateID)
		return Record{}, ErrNotFound
	}
	return rec.record, nil
}

func (s *MemoryStore) ActiveForClient(ctx context.Context, clientUUID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stateID, ok := s.active[clientUUID]
	return stateID, ok, nil
}

// ClearExpired removes snapshots untouched for longer than the store's TTL.
// Mirrors the teacher's MemoryDialogStore.ClearExpired lazy-sweep shape.
func (s *MemoryStore) ClearExpired(now time.Time) int {
	if s.ttl == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, rec := range s.snapshots {
		if now.Sub(rec.lastTouched) > s.ttl {
			delete(s.snapshots, id)
			deleted++
		}
	}
	return deleted
}
