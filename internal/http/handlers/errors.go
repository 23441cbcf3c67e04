// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic codes returned in ErrorResponse.Code and
// writeError, which maps service and indexer errors onto a status and code.
// Clients are expected to branch on the code, not on the message.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "document_not_indexed",
//	  "message": "document \"abc123\" has not been indexed in this session; upload and index it first"
//	}
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-policy-qa/internal/indexer"
	"github.com/tbourn/go-policy-qa/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeFileRequired       = "file_required"
	ErrCodeUnsupportedType    = "unsupported_type"
	ErrCodeFileTooLarge       = "file_too_large"
	ErrCodeUpstreamFailed     = "upstream_failed"
	ErrCodeDocumentNotIndexed = "document_not_indexed"
	ErrCodeQuestionFailed     = "question_failed"
	ErrCodeIdempotencyReused  = "idempotency_key_reused"
)

// statusFor classifies err. Upstream failures are 502: the request was fine,
// the indexer was not.
func statusFor(err error) (int, string, string) {
	var nf *services.NotFoundError
	switch {
	case isBodyTooLarge(err):
		return http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge, "uploaded file is too large"
	case errors.Is(err, services.ErrEmptyFile), errors.Is(err, http.ErrMissingFile):
		return http.StatusBadRequest, ErrCodeFileRequired, "a non-empty PDF file is required"
	case errors.Is(err, services.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, ErrCodeUnsupportedType, "only PDF documents are supported"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.As(err, &nf):
		return http.StatusNotFound, ErrCodeDocumentNotIndexed, nf.Error()
	case errors.Is(err, indexer.ErrUpstream):
		msg, _ := indexer.UpstreamMessage(err)
		return http.StatusBadGateway, ErrCodeUpstreamFailed, msg
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
}

// writeError fails the request with the status and code err maps to. A
// *services.QuestionError keeps the status of its cause but reports
// question_failed with a message naming the question.
func writeError(c *gin.Context, err error) {
	status, code, msg := statusFor(err)

	var qe *services.QuestionError
	if errors.As(err, &qe) {
		code, msg = ErrCodeQuestionFailed, qe.Error()
	}
	if status == http.StatusInternalServerError {
		logUnhandled(c, err)
	}
	fail(c, status, code, msg)
}

// isBodyTooLarge reports a MaxBytesReader failure. Multipart parsing does not
// always wrap the read error, so the message is checked too.
func isBodyTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}
