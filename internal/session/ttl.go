// Package session – TTL policy
//
// TTL wraps patrickmn/go-cache. go-cache already stores values behind its own
// lock and runs a janitor goroutine, so this type only adapts the interface
// and copies records on the way in and out.
package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// TTL expires sessions a fixed time after their last Put. Expired entries are
// purged in the background by go-cache's janitor.
type TTL struct {
	c *gocache.Cache
}

// NewTTL constructs an expiring cache. The janitor runs at half the TTL, with
// a floor of one second.
func NewTTL(ttl time.Duration) *TTL {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return &TTL{c: gocache.New(ttl, interval)}
}

// Put inserts or replaces the record for id and restarts its expiry.
func (t *TTL) Put(id string, rec domain.SessionRecord) {
	if id == "" {
		return
	}
	t.c.Set(id, rec.Clone(), gocache.DefaultExpiration)
}

// Get returns a copy of the record for id if it has not expired.
func (t *TTL) Get(id string) (domain.SessionRecord, bool) {
	x, found := t.c.Get(id)
	if !found {
		return domain.SessionRecord{}, false
	}
	return x.(domain.SessionRecord).Clone(), true
}

// Has reports whether id is cached and unexpired.
func (t *TTL) Has(id string) bool {
	_, found := t.c.Get(id)
	return found
}

// Len returns the number of cached sessions, possibly including entries that
// expired but have not been purged yet.
func (t *TTL) Len() int { return t.c.ItemCount() }
