// Package runstore keeps serialized search runs for later retrieval.
package runstore

import (
	"context"
	"sync"
	"time"
)

// Store persists opaque run records by ID.
type Store interface {
	Save(ctx context.Context, id string, data []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Sentinel errors for store operations
var (
	ErrNotFound = storeError("run not found")
	ErrExpired  = storeError("run expired")
)

type storeError string

func (e storeError) Error() string {
	return string(e)
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps runs in process memory with a TTL. Suitable for a single
// instance; use RedisStore to share runs between replicas.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     map[string]entry
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates an in-memory store whose entries live for ttl and
// are swept every cleanupInterval.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		runs:     make(map[string]entry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

// Save stores a copy of data under id, replacing any previous record.
func (s *MemoryStore) Save(_ context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[id] = entry{
		data:      append([]byte(nil), data...),
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Load returns the record for id.
func (s *MemoryStore) Load(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		return nil, ErrExpired
	}
	return append([]byte(nil), e.data...), nil
}

// Delete removes the record for id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	return nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

// Len is the number of stored records, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, e := range s.runs {
		if now.After(e.expiresAt) {
			delete(s.runs, id)
		}
	}
}
