// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for POST /questions. It validates
// the Idempotency-Key header, optionally asks a caller supplied lookup whether
// the request was already completed, and annotates the Gin context so that
// downstream code can:
//   - read the validated key (GetIdempotencyKey)
//   - detect replays (IsReplay)
//   - skip rate limiting for a replay (IsRateBypass)
//
// Design goals:
//   - Transport concerns (validation, stashing) live here; persistence sits
//     behind the IdempotencyLookup function type.
//   - The scope of a key is pluggable. Questions carry their document
//     identifier in the body, so the router scopes keys with a body peek.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a
// previously recorded result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, _ := c.Get(ctxKeyIdemKey)
	s := asString(v)
	return s, s != ""
}

// IsReplay reports whether the lookup found a completed result for this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope extracts the resource the key is bound to (for questions, the
	// document identifier). Nil means the ":id" path parameter.
	Scope func(*gin.Context) string
}

// IdempotencyLookup reports whether a still-valid result exists for
// (clientID, scope, key). TTL is enforced by the implementation. Errors are
// treated as a miss.
type IdempotencyLookup func(ctx context.Context, clientID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the Gin context and optionally checks for a prior completed
// request via lookup.
//
// Behavior:
//   - No header: the middleware is a no-op.
//   - Header too long or outside the allowed pattern: 400 bad_idempotency_key.
//   - Lookup reports a hit: sets the replay and rate-bypass flags.
//   - Lookup errors count as a miss and never block the request.
//
// The middleware never writes a cached payload itself. The question handler
// serves replays from the recorded exchange and also checks that the key is
// not being reused for a different question.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	scope := opts.Scope
	if scope == nil {
		scope = func(c *gin.Context) string { return c.Param("id") }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if exists, err := lookup(c.Request.Context(), ClientIDFrom(c), scope(c), key, time.Now().UTC()); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
