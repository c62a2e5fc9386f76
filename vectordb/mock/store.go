// Package mock provides a test double for vectordb.Store.
package mock

import (
	"context"
	"sync"

	"github.com/syntropic/vecfeed/vectordb"
)

// MockStore is a test double for vectordb.Store.
// It allows custom behavior injection via function fields and records
// what was delivered. Safe for concurrent use: the uploader drives it
// from a worker pool.
type MockStore struct {
	// ReadyFunc is called by Ready if set. If nil, Ready succeeds.
	ReadyFunc func(ctx context.Context) error

	// UpsertBatchFunc is called by UpsertBatch if set.
	// If nil, every object is accepted.
	UpsertBatchFunc func(ctx context.Context, objects []vectordb.Object) (*vectordb.BatchResult, error)

	mu        sync.Mutex
	callCount int
	upserted  []vectordb.Object
}

// NewMockStore creates a mock store that accepts everything.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Ready reports readiness, delegating to ReadyFunc when set.
func (m *MockStore) Ready(ctx context.Context) error {
	if m.ReadyFunc != nil {
		return m.ReadyFunc(ctx)
	}
	return nil
}

// UpsertBatch records accepted objects and counts the call. When
// UpsertBatchFunc reports rejections or an error, only the accepted
// objects are recorded.
func (m *MockStore) UpsertBatch(ctx context.Context, objects []vectordb.Object) (*vectordb.BatchResult, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.UpsertBatchFunc != nil {
		result, err := m.UpsertBatchFunc(ctx, objects)
		if err == nil && result != nil {
			m.record(objects, result)
		}
		return result, err
	}

	result := &vectordb.BatchResult{Delivered: make([]string, len(objects))}
	for i, obj := range objects {
		result.Delivered[i] = obj.ChunkID
	}
	m.record(objects, result)
	return result, nil
}

func (m *MockStore) record(objects []vectordb.Object, result *vectordb.BatchResult) {
	rejected := make(map[string]struct{}, len(result.Rejected))
	for _, r := range result.Rejected {
		rejected[r.ChunkID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range objects {
		if _, skip := rejected[obj.ChunkID]; !skip {
			m.upserted = append(m.upserted, obj)
		}
	}
}

// CallCount returns the number of UpsertBatch calls, including failed
// ones.
func (m *MockStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Upserted returns a copy of every object accepted so far.
func (m *MockStore) Upserted() []vectordb.Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vectordb.Object, len(m.upserted))
	copy(out, m.upserted)
	return out
}

// UpsertedChunkIDs returns the chunk IDs accepted so far, in delivery
// order.
func (m *MockStore) UpsertedChunkIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.upserted))
	for i, obj := range m.upserted {
		ids[i] = obj.ChunkID
	}
	return ids
}

// Reset clears recorded state and injected behavior.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.upserted = nil
	m.ReadyFunc = nil
	m.UpsertBatchFunc = nil
}
