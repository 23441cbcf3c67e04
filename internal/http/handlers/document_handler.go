// Document HTTP handlers.
//
// This file exposes the upload endpoints and session metadata:
//   - POST /documents                  (upload and index a PDF)
//   - POST /documents/analyze          (upload once, answer several questions)
//   - GET  /documents/{id}             (session metadata)
//   - GET  /documents/{id}/questions   (recorded exchanges, paginated, ETag)
package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-policy-qa/internal/domain"
	"github.com/tbourn/go-policy-qa/internal/http/middleware"
	"github.com/tbourn/go-policy-qa/internal/repo"
	"github.com/tbourn/go-policy-qa/internal/services"
	"github.com/tbourn/go-policy-qa/internal/utils"
)

//
// DTOs
//

// AnalyzeResponse carries one answer per non-blank question, in order.
type AnalyzeResponse struct {
	DocumentID string   `json:"document_identifier" example:"abc123"`
	Answers    []string `json:"answers"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// DocumentResponse is the session metadata plus the most recent indexing
// attempts recorded for the identifier.
type DocumentResponse struct {
	domain.SessionRecord
	IndexEvents []domain.IndexEvent `json:"index_events,omitempty"`
}

// recentIndexEvents caps the audit rows attached to GetDocument.
const recentIndexEvents = 5

// ListExchangesResponse wraps a page of exchanges.
type ListExchangesResponse struct {
	Exchanges  []domain.Exchange `json:"exchanges"`
	Pagination Pagination        `json:"pagination"`
}

//
// Helpers
//

// readUpload pulls the "file" part out of a multipart request. Anything but an
// oversized body is reported as a missing file.
func readUpload(c *gin.Context) (services.FileUpload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			return services.FileUpload{}, err
		}
		return services.FileUpload{}, fmt.Errorf("%w: %v", http.ErrMissingFile, err)
	}
	f, err := fh.Open()
	if err != nil {
		return services.FileUpload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return services.FileUpload{}, err
	}
	return services.FileUpload{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload and index a PDF
// @Description Forwards the file to the indexing service and opens a session for the returned identifier.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file  formData  file  true  "PDF document"
//
// @Success     201  {object}  services.UploadResult
// @Failure     400  {object}  handlers.ErrorResponse  "File missing or empty"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     415  {object}  handlers.ErrorResponse  "Not a PDF"
// @Failure     502  {object}  handlers.ErrorResponse  "Indexing service failed"
// @Router      /documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	up, err := readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.docs.UploadAndIndex(c.Request.Context(), up)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// AnalyzeDocument godoc
// @ID          analyzeDocument
// @Summary     Upload a PDF and ask several questions
// @Description Indexes the file once, then answers each question in order. The first failing question fails the whole request.
// @Tags        Documents
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file       formData  file    true  "PDF document"
// @Param       questions  formData  []string true "Questions (repeat the field)" collectionFormat(multi)
//
// @Success     200  {object}  handlers.AnalyzeResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     415  {object}  handlers.ErrorResponse  "Not a PDF"
// @Failure     502  {object}  handlers.ErrorResponse  "Indexing service failed"
// @Router      /documents/analyze [post]
func (h *Handlers) AnalyzeDocument(c *gin.Context) {
	up, err := readUpload(c)
	if err != nil {
		writeError(c, err)
		return
	}

	res, answers, err := h.docs.AnalyzeWithMultipleQuestions(c.Request.Context(), up, c.PostFormArray("questions"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, AnalyzeResponse{DocumentID: res.DocumentID, Answers: answers})
}

// GetDocument godoc
// @ID          getDocument
// @Summary     Session metadata for an indexed document
// @Tags        Documents
// @Produce     json
//
// @Param       id  path  string  true  "Document identifier"
//
// @Success     200  {object}  handlers.DocumentResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not indexed in this session"
// @Router      /documents/{id} [get]
func (h *Handlers) GetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := h.docs.Describe(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := DocumentResponse{SessionRecord: rec}
	if h.db != nil {
		events, err := repo.ListIndexEvents(ctx, h.db, rec.DocumentID, recentIndexEvents)
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("document_id", rec.DocumentID).Msg("index events unavailable")
		}
		out.IndexEvents = events
	}
	ok(c, http.StatusOK, out)
}

// ListExchanges godoc
// @ID          listExchanges
// @Summary     Questions answered for a document
// @Description Returns a page of recorded exchanges. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Documents
// @Produce     json
//
// @Param       id         path   string  true  "Document identifier"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListExchangesResponse
// @Success     304  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Not indexed in this session"
// @Router      /documents/{id}/questions [get]
func (h *Handlers) ListExchanges(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := strings.TrimSpace(c.Param("id"))

	if _, err := h.docs.Describe(ctx, documentID); err != nil {
		writeError(c, err)
		return
	}

	// ETag pre-check (best effort).
	if h.db != nil {
		if count, latest, err := repo.ExchangesStats(ctx, h.db, documentID); err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"exchanges:%s:%d:%d"`, documentID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.docs.History(ctx, documentID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListExchangesResponse{
		Exchanges: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
