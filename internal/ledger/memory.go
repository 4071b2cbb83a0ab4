package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lalithlochan/nudge/internal/db"
)

// MemoryStore is a process-local Store. Entries are lost on restart, so it
// only suits tests and single-process dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]db.LedgerEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]db.LedgerEntry)}
}

func (m *MemoryStore) InsertLedgerEntry(_ context.Context, entry *db.LedgerEntry) (bool, error) {
	k := Key{Kind: entry.Kind, EntityID: entry.EntityID, SubjectID: entry.SubjectID, Window: entry.WindowKey}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[k]; ok {
		return false, nil
	}
	m.entries[k] = *entry
	return true, nil
}

func (m *MemoryStore) LedgerEntryExists(_ context.Context, kind string, entityID, subjectID uuid.UUID, window string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[Key{Kind: kind, EntityID: entityID, SubjectID: subjectID, Window: window}]
	return ok, nil
}

func (m *MemoryStore) ListLedgerEntries(_ context.Context, kind string, entityID uuid.UUID) ([]*db.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*db.LedgerEntry
	for k, e := range m.entries {
		if k.Kind == kind && k.EntityID == entityID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}
