// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint. All
// failures go through fail, which writes an ErrorResponse with a stable code
// and logs 5xx outcomes with the request-scoped logger.
//
// Example error response:
//
//	HTTP/1.1 502 Bad Gateway
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "upstream_failed",
//	  "message": "vector store unavailable"
//	}
//
// Example success response:
//
//	HTTP/1.1 201 Created
//	{ "document_identifier": "abc123", "message": "uploaded & indexed" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-policy-qa/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"document_not_indexed"`
	// Human-readable message; upstream messages are forwarded as-is
	Message string `json:"message" example:"document \"abc123\" has not been indexed in this session; upload and index it first"`
}

// fail aborts the request with a structured error.
//
// Behavior:
//   - The request ID is read from the X-Request-ID response header set by
//     middleware.RequestID, so it matches the access log line.
//   - Server errors (>= 500, including 502 upstream_failed) are logged with
//     the request-scoped logger; 4xx outcomes are left to the access log.
//   - The chain is aborted, so later handlers do not run.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail, used by the router's NoRoute and
// NoMethod fallbacks so they share the envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// logUnhandled records an unexpected error before it is hidden behind a
// generic 500 message.
func logUnhandled(c *gin.Context, err error) {
	middleware.LoggerFrom(c).Error().Err(err).Msg("unhandled error")
}
