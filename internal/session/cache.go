// Package session holds the process-wide mapping from document identifier to
// SessionRecord.
//
// The cache is volatile: it lives for the lifetime of the process and a
// restart clears every session. Eviction is pluggable so that the default
// unbounded behavior can be swapped for a bounded LRU or an expiring cache
// without touching the document service.
//
// All implementations are safe for concurrent use. Locks are held only for the
// duration of a map operation, never across network I/O.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// Cache is the contract the document service depends on.
type Cache interface {
	// Put inserts or overwrites the record for id. An empty id is ignored.
	Put(id string, rec domain.SessionRecord)
	// Get returns a copy of the record for id. A miss is an ordinary
	// (zero, false) result.
	Get(id string) (domain.SessionRecord, bool)
	// Has reports whether id is currently cached.
	Has(id string) bool
	// Len returns the number of cached sessions.
	Len() int
}

// Eviction policies accepted by New.
const (
	PolicyUnbounded = "unbounded"
	PolicyLRU       = "lru"
	PolicyTTL       = "ttl"
)

// Options selects and tunes a cache implementation.
type Options struct {
	Policy  string        // unbounded|lru|ttl
	MaxSize int           // lru capacity (>= 1)
	TTL     time.Duration // ttl expiry (> 0)
}

// New builds the cache described by opts. An empty policy means unbounded.
func New(opts Options) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Policy)) {
	case "", PolicyUnbounded:
		return NewMemory(), nil
	case PolicyLRU:
		if opts.MaxSize < 1 {
			return nil, fmt.Errorf("lru cache size must be >= 1, got %d", opts.MaxSize)
		}
		return NewLRU(opts.MaxSize), nil
	case PolicyTTL:
		if opts.TTL <= 0 {
			return nil, fmt.Errorf("ttl cache expiry must be > 0, got %s", opts.TTL)
		}
		return NewTTL(opts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session cache policy %q", opts.Policy)
	}
}
