package prefstore

import (
	"context"
	"sync"

	"github.com/brunobiangulo/clinextract"
)

// MemoryStore is an in-memory Store, used in tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]clinextract.PreferenceEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]clinextract.PreferenceEntry)}
}

func (m *MemoryStore) Get(ctx context.Context, doctorID string) (clinextract.DoctorPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make(map[string]clinextract.PreferenceEntry)
	for k, v := range m.data[doctorID] {
		entries[k] = v
	}
	return clinextract.DoctorPreferences{DoctorID: doctorID, Entries: entries}, nil
}

func (m *MemoryStore) Put(ctx context.Context, doctorID, originalTerm string, entry clinextract.PreferenceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[doctorID] == nil {
		m.data[doctorID] = make(map[string]clinextract.PreferenceEntry)
	}
	m.data[doctorID][originalTerm] = entry
	return nil
}

func (m *MemoryStore) BulkPut(ctx context.Context, doctorID string, entries map[string]clinextract.PreferenceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[doctorID] == nil {
		m.data[doctorID] = make(map[string]clinextract.PreferenceEntry)
	}
	for term, entry := range entries {
		m.data[doctorID][term] = entry
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
