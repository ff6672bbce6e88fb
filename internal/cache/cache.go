package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity bounds a Manager created with a non-positive capacity.
const DefaultCapacity = 256

type entryKey struct {
	AnalysisID string
	ConfigHash string
}

// Stats is a point-in-time view of a Manager's counters.
type Stats struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
}

// Manager stores artifacts keyed by (analysis_id, config_hash). Entries are
// evicted least-recently-used once capacity is reached. Concurrent
// GetOrCompute calls for the same key share one computation.
type Manager[V any] struct {
	name     string
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	entries *lru.Cache[entryKey, V]
	flight  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Manager holding at most capacity artifacts.
func New[V any](name string, capacity int, logger *slog.Logger) (*Manager[V], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := lru.New[entryKey, V](capacity)
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", name, err)
	}
	return &Manager[V]{
		name:     name,
		capacity: capacity,
		logger:   logger.With("cache", name),
		entries:  entries,
	}, nil
}

// Get returns the artifact stored under (analysisID, configHash).
func (m *Manager[V]) Get(analysisID, configHash string) (V, bool) {
	m.mu.Lock()
	v, ok := m.entries.Get(entryKey{analysisID, configHash})
	m.mu.Unlock()

	if ok {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	return v, ok
}

// Set stores an artifact, replacing any previous one under the same key.
func (m *Manager[V]) Set(analysisID, configHash string, v V) {
	m.mu.Lock()
	evicted := m.entries.Add(entryKey{analysisID, configHash}, v)
	m.mu.Unlock()

	if evicted {
		m.evictions.Add(1)
		m.logger.Debug("cache eviction", "analysis_id", analysisID)
	}
}

// Clear removes every artifact stored under analysisID and returns how many
// were removed. Artifacts of other analyses are untouched.
func (m *Manager[V]) Clear(analysisID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, k := range m.entries.Keys() {
		if k.AnalysisID == analysisID && m.entries.Remove(k) {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("cache cleared", "analysis_id", analysisID, "removed", removed)
	}
	return removed
}

// ClearAll removes every artifact.
func (m *Manager[V]) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.entries.Len()
	m.entries.Purge()
	return n
}

// GetOrCompute returns the cached artifact or computes, stores and returns it.
// The boolean reports whether the result came from the cache. Failed
// computations are not stored.
func (m *Manager[V]) GetOrCompute(ctx context.Context, analysisID, configHash string, fn func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := m.Get(analysisID, configHash); ok {
		return v, true, nil
	}

	flightKey := analysisID + "\x00" + configHash
	result, err, _ := m.flight.Do(flightKey, func() (interface{}, error) {
		m.mu.Lock()
		v, ok := m.entries.Peek(entryKey{analysisID, configHash})
		m.mu.Unlock()
		if ok {
			return v, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		m.Set(analysisID, configHash, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return result.(V), false, nil
}

// Len returns the number of stored artifacts.
func (m *Manager[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Stats returns the manager's counters.
func (m *Manager[V]) Stats() Stats {
	return Stats{
		Name:      m.name,
		Entries:   m.Len(),
		Capacity:  m.capacity,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}
