package session

import (
	"sync"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// Memory is the unbounded cache: a map guarded by an RWMutex. It grows for
// the lifetime of the process.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionRecord
}

// NewMemory constructs an empty unbounded cache.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]domain.SessionRecord)}
}

// Put inserts or replaces the record for id.
func (m *Memory) Put(id string, rec domain.SessionRecord) {
	if id == "" {
		return
	}
	rec = rec.Clone()
	m.mu.Lock()
	m.sessions[id] = rec
	m.mu.Unlock()
}

// Get returns a copy of the record for id.
func (m *Memory) Get(id string) (domain.SessionRecord, bool) {
	m.mu.RLock()
	rec, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return domain.SessionRecord{}, false
	}
	return rec.Clone(), true
}

// Has reports whether id is cached.
func (m *Memory) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// Len returns the number of cached sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
