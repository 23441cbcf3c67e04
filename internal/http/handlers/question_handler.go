// Question HTTP handler.
//
//   - POST /questions   (answer a question about an indexed document)
//
// The body may be JSON or a urlencoded form. JSON null counts as absent.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous answer was
// recorded for (client, document, key), the handler returns that answer with
// `Idempotency-Replayed: true` and the indexer is not called. Reusing a key
// for a different question is refused with 422 idempotency_key_reused.
package handlers

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/tbourn/go-policy-qa/internal/http/middleware"
	"github.com/tbourn/go-policy-qa/internal/repo"
	"github.com/tbourn/go-policy-qa/internal/services"
)

// AskQuestionRequest is the question payload.
type AskQuestionRequest struct {
	DocumentID string `json:"document_identifier" form:"document_identifier" example:"abc123"`
	Question   string `json:"question_text" form:"question_text" example:"What does the policy cover?"`
}

// AskQuestionResponse carries the normalized answer.
type AskQuestionResponse struct {
	AnswerText string `json:"answer_text" example:"Coverage X"`
	ExchangeID string `json:"exchange_id,omitempty"`
}

// AskQuestion godoc
// @ID          askQuestion
// @Summary     Ask a question about an indexed document
// @Description Routes the question to the indexing service for a document indexed in this session.
// @Description Supports idempotency via the Idempotency-Key header (same key → same answer).
// @Tags        Questions
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       X-Client-ID      header  string  false "Caller identity (scopes idempotency and rate limits)"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.AskQuestionRequest  true  "Question payload"
//
// @Success     200  {object}  handlers.AskQuestionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing identifier or question"
// @Failure     404  {object}  handlers.ErrorResponse  "Not indexed in this session"
// @Failure     502  {object}  handlers.ErrorResponse  "Indexing service failed"
// @Router      /questions [post]
func (h *Handlers) AskQuestion(c *gin.Context) {
	ctx := c.Request.Context()

	var req AskQuestionRequest
	if err := c.ShouldBind(&req); err != nil {
		if isBodyTooLarge(err) {
			writeError(c, err)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	documentID := strings.TrimSpace(req.DocumentID)

	clientID := middleware.ClientIDFrom(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)

	fingerprint := services.QuestionFingerprint(req.Question)

	// Replay path. Only for documents this process still has a session for.
	if idemKey != "" && h.db != nil {
		if _, err := h.docs.Describe(ctx, documentID); err == nil {
			if rec, err := repo.GetIdempotency(ctx, h.db, clientID, documentID, idemKey, time.Now().UTC()); err == nil {
				if rec.RequestHash != "" && rec.RequestHash != fingerprint {
					fail(c, http.StatusUnprocessableEntity, ErrCodeIdempotencyReused,
						"Idempotency-Key was already used for a different question")
					return
				}
				if prev, err := h.docs.Exchange(ctx, rec.ExchangeID); err == nil {
					c.Header(middleware.HeaderIdempotencyReplayed, "true")
					ok(c, http.StatusOK, AskQuestionResponse{AnswerText: prev.Answer, ExchangeID: prev.ID})
					return
				}
			}
		}
	}

	answer, ex, err := h.docs.AnswerQuestionRecorded(ctx, documentID, req.Question)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := AskQuestionResponse{AnswerText: answer}
	if ex != nil {
		resp.ExchangeID = ex.ID
	}

	// Store path, best effort.
	if idemKey != "" && ex != nil && h.db != nil {
		if _, err := repo.CreateIdempotency(ctx, h.db, clientID, documentID, idemKey, fingerprint, ex.ID, http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Str("document_id", documentID).Msg("failed to store idempotency key")
		}
	}

	ok(c, http.StatusOK, resp)
}

// DocumentIDFromBody peeks at a JSON or urlencoded body for its document
// identifier and restores the body for binding. It scopes Idempotency-Key
// lookups on POST /questions, where the identifier is not in the path. Other
// content types, uploads included, are not read.
func DocumentIDFromBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	mt, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	isForm := mt == "application/x-www-form-urlencoded"
	if !isForm && mt != "application/json" && !strings.HasSuffix(mt, "+json") {
		return ""
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		// Replay the bytes read so far, then the read error, so binding
		// fails the same way it would have without this peek.
		c.Request.Body = io.NopCloser(&failAfter{r: bytes.NewReader(raw), err: err})
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	if isForm {
		vals, err := url.ParseQuery(string(raw))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(vals.Get("document_identifier"))
	}
	v := gjson.GetBytes(raw, "document_identifier")
	if !gjson.ValidBytes(raw) || v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.String())
}

// failAfter yields r and then err in place of io.EOF.
type failAfter struct {
	r   io.Reader
	err error
}

func (f *failAfter) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		err = f.err
	}
	return n, err
}
