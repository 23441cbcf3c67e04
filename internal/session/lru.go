// Package session – LRU policy
//
// LRU bounds the number of live sessions. Evicting a session has the same
// effect as never having indexed the document: the next question for it is a
// not-found and never reaches the indexer. Recency is tracked with a
// container/list whose front is the most recently used entry.
package session

import (
	"container/list"
	"sync"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// LRU is a bounded cache that evicts the least recently used session once
// capacity is reached. Get and Put both count as a use; Has does not.
type LRU struct {
	mu    sync.Mutex
	cap   int
	order *list.List // front = most recent
	items map[string]*list.Element
}

type lruEntry struct {
	id  string
	rec domain.SessionRecord
}

// NewLRU constructs an LRU cache holding at most size sessions. Sizes below 1
// are coerced to 1.
func NewLRU(size int) *LRU {
	if size < 1 {
		size = 1
	}
	return &LRU{
		cap:   size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
	}
}

// Put inserts or replaces the record for id, evicting the oldest entry when full.
func (l *LRU) Put(id string, rec domain.SessionRecord) {
	if id == "" {
		return
	}
	rec = rec.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.items[id]; ok {
		el.Value.(*lruEntry).rec = rec
		l.order.MoveToFront(el)
		return
	}
	if l.order.Len() >= l.cap {
		if oldest := l.order.Back(); oldest != nil {
			l.order.Remove(oldest)
			delete(l.items, oldest.Value.(*lruEntry).id)
		}
	}
	l.items[id] = l.order.PushFront(&lruEntry{id: id, rec: rec})
}

// Get returns a copy of the record for id and marks it as recently used.
func (l *LRU) Get(id string) (domain.SessionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[id]
	if !ok {
		return domain.SessionRecord{}, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruEntry).rec.Clone(), true
}

// Has reports whether id is cached without touching recency.
func (l *LRU) Has(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.items[id]
	return ok
}

// Len returns the number of cached sessions.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
