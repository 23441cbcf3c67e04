// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used in production.
// It never logs bodies (uploaded documents and question text stay out of the
// logs), masks credential headers, and scrubs emails, phone numbers and UUIDs
// from the query string and the remaining header values.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID(), middleware.ClientID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
//
// The router picks it over Logger when LOG_REDACT is on (the default).
//
// Security note: scrubbing reduces, but does not remove, the chance of
// personal data reaching the logs. Clients should still keep it out of query
// strings and headers.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra headers whose values are replaced with
// "[REDACTED]". Matching is case-insensitive; Authorization, Cookie and
// Set-Cookie are always masked.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	redactUUID = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	redactMail = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex segments never match.
	redactPhone = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs PII from s. UUIDs go first so the looser phone pattern cannot
// eat their digit groups.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = redactUUID.ReplaceAllString(s, "[REDACTED:id]")
	s = redactMail.ReplaceAllString(s, "[REDACTED:email]")
	return redactPhone.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger returns a Gin middleware that logs each request with
// sensitive values scrubbed.
//
// Behavior:
//   - Logs method, route, scrubbed query, status, response size, latency,
//     request ID, client ID and the scrubbed request headers.
//   - Masks Authorization, Cookie, Set-Cookie and every opts.MaskHeaders
//     entry as "[REDACTED]".
//   - Like Logger, attaches a request-scoped logger before the handler runs,
//     so service logs stay correlated.
//   - Level is info by default, warn for 4xx and error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := redact(c.Request.URL.RawQuery)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		scoped := log.With().
			Ctx(c.Request.Context()).
			Str("request_id", reqID).
			Str("client_id", clientIDFromCtx(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		attachLogger(c, &scoped)

		c.Next()

		// The response header wins if a later middleware minted the ID.
		if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
			reqID = rid
		}

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", reqID).
			Str("client_id", clientIDFromCtx(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Int64("bytes_in", c.Request.ContentLength).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
