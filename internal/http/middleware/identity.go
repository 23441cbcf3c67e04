package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderClientID lets a caller name itself. It scopes idempotency keys and
// rate-limit buckets; it is not authentication.
const HeaderClientID = "X-Client-ID"

const clientIDKey = "clientID"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:@]{1,128}$`)

// ClientID stores a well-formed X-Client-ID in the Gin context. Malformed or
// missing values are ignored and callers fall back to the client IP.
func ClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderClientID)); clientIDPattern.MatchString(id) {
			c.Set(clientIDKey, id)
		}
		c.Next()
	}
}

// ClientIDFrom returns the declared client ID, or "ip:<addr>" when the caller
// did not declare one.
func ClientIDFrom(c *gin.Context) string {
	if id := clientIDFromCtx(c); id != "" {
		return id
	}
	return "ip:" + c.ClientIP()
}

func clientIDFromCtx(c *gin.Context) string {
	v, _ := c.Get(clientIDKey)
	return asString(v)
}
