package storage

import (
	"sync"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
)

// MemoryStore keeps state in process memory. Nothing survives a restart, so it is only
// suitable for dry runs and tests.
type MemoryStore struct {
	mu         sync.Mutex
	watermarks map[string][]time.Time
	digests    map[string]string
	deliveries map[string]bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		watermarks: make(map[string][]time.Time),
		digests:    make(map[string]string),
		deliveries: make(map[string]bool),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) ReadWatermark(sourceID string) (time.Time, error) {
	if err := validSourceID(sourceID); err != nil {
		return time.Time{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(sourceID), nil
}

func (m *MemoryStore) AppendWatermark(sourceID string, ts time.Time) error {
	if err := validSourceID(sourceID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	advance, err := checkAdvance(m.current(sourceID), ts)
	if err != nil || !advance {
		return err
	}
	m.watermarks[sourceID] = append(m.watermarks[sourceID], ts)
	return nil
}

// History returns every committed timestamp for a source in commit order.
func (m *MemoryStore) History(sourceID string) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.watermarks[sourceID]...)
}

func (m *MemoryStore) ReadDigest(sourceID string) (string, error) {
	if err := validSourceID(sourceID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.digests[sourceID], nil
}

func (m *MemoryStore) ReplaceDigest(sourceID, digest string) error {
	if err := validSourceID(sourceID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests[sourceID] = digest
	return nil
}

func (m *MemoryStore) SeenDelivery(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveries[key], nil
}

func (m *MemoryStore) MarkDelivery(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[key] = true
	return nil
}

func (m *MemoryStore) current(sourceID string) time.Time {
	log := m.watermarks[sourceID]
	if len(log) == 0 {
		return domain.SentinelWatermark
	}
	return log[len(log)-1]
}
