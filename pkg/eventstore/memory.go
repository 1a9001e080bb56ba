package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process journal with the same semantics as EventStore.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) currentVersion(aggregateID uuid.UUID) int {
	version := 0
	for _, e := range m.events {
		if e.AggregateID == aggregateID && e.Version > version {
			version = e.Version
		}
	}
	return version
}

func (m *MemoryStore) AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	if expectedVersion < 0 {
		return ErrInvalidVersion
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentVersion(aggregateID) != expectedVersion {
		return ErrConcurrencyConflict
	}
	for i, event := range events {
		event.ID = int64(len(m.events) + 1)
		event.AggregateID = aggregateID
		event.AggregateType = aggregateType
		event.Version = expectedVersion + i + 1
		event.CreatedAt = time.Now().UTC()
		m.events = append(m.events, event)
	}
	return nil
}

func (m *MemoryStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if e.AggregateID != aggregateID || e.Version < fromVersion {
			continue
		}
		if toVersion > 0 && e.Version > toVersion {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) GetCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentVersion(aggregateID), nil
}

func (m *MemoryStore) StreamEvents(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if e.ID <= fromID {
			continue
		}
		if len(out) == batchSize {
			break
		}
		out = append(out, e)
	}
	return out, nil
}
