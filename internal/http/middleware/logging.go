// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request plumbing every other middleware leans on:
//
//   - RequestID() gives each request a correlation ID (X-Request-ID), reused
//     from the caller when present.
//   - Logger() writes one structured access line per request and attaches a
//     request-scoped zerolog.Logger carrying request_id and client_id.
//   - Recovery() turns panics into the standard JSON 500 envelope and logs the
//     stack with the correlation ID.
//   - LoggerFrom() hands that scoped logger to handlers.
//
// Design notes:
//   - Suggested order: RequestID, ClientID, Logger (or RedactingLogger),
//     Recovery. The access log then knows who called and a panic is logged
//     against the right request.
//   - The scoped logger is stored under the "logger" Gin key and also
//     attached to the request context, so services fetch it with
//     zerolog.Ctx(ctx) without importing Gin. Document uploads and indexer
//     calls log through it, which ties upstream failures to a request ID.
//   - Query strings are truncated before logging.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key for the request-scoped logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
//
// Behavior:
//   - An incoming X-Request-ID is reused as is; otherwise a UUIDv4 is minted.
//   - The ID is echoed on the response header and stored in the Gin context
//     under "requestID", where the error envelope picks it up.
//
// Install it first so every later log line and error body can carry the ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one structured access log line per request and attaches a
// request-scoped logger for downstream use.
//
// Features:
//   - Records method, route (raw path when nothing matched), client IP,
//     user agent, request ID, client ID, request size, status, latency and
//     bytes written.
//   - The scoped logger is attached before the handler runs, so log lines
//     from services during an upload already carry request_id.
//   - Level is chosen by outcome:
//   - error for 5xx or when Gin collected errors,
//   - warn for 4xx (a missing document is a 404 and shows up here),
//   - info otherwise.
//
// Note: place this after RequestID() and ClientID().
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		l := log.With().
			Ctx(c.Request.Context()).
			Str("request_id", asString(rid)).
			Str("client_id", clientIDFromCtx(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			// ContentLength can be -1 if unknown.
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		attachLogger(c, &l)

		c.Next()

		ev := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500.
//
// Behavior:
//   - Logs the panic value and stack with the request ID.
//   - If nothing has been written yet, responds with the standard envelope:
//     { "request_id": "...", "code": "internal_error", "message": "internal server error" }
//   - If the handler already started writing, only the log line is emitted;
//     the partial response is left alone.
//
// Deferred cleanups in the handler chain (such as removing a staged upload)
// still run before Recovery sees the panic.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or a plain child of the global
// logger when none was attached. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// attachLogger stores l in the Gin context and in the request context.
func attachLogger(c *gin.Context, l *zerolog.Logger) {
	c.Set(loggerKey, l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
