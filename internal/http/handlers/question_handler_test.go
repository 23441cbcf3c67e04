package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-policy-qa/internal/domain"
	"github.com/tbourn/go-policy-qa/internal/http/middleware"
	"github.com/tbourn/go-policy-qa/internal/indexer"
	"github.com/tbourn/go-policy-qa/internal/services"
)

func knownDocs(answer string) *stubDocs {
	svc := newStubDocs()
	svc.known["abc123"] = domain.SessionRecord{DocumentID: "abc123"}
	svc.answer = answer
	return svc
}

func TestAskQuestion_JSONAndForm(t *testing.T) {
	svc := knownDocs("Coverage X")
	r := newTestRouter(New(svc, nil, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newJSONRequest(http.MethodPost, "/questions",
		`{"document_identifier":"abc123","question_text":"What is covered?"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("json: status = %d body=%s", w.Code, w.Body.String())
	}
	var got AskQuestionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.AnswerText != "Coverage X" || got.ExchangeID == "" {
		t.Fatalf("unexpected body: %+v", got)
	}

	form := url.Values{"document_identifier": {"abc123"}, "question_text": {"What is covered?"}}
	req := httptest.NewRequest(http.MethodPost, "/questions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"answer_text":"Coverage X"`) {
		t.Fatalf("form: %d %s", w.Code, w.Body.String())
	}
}

func TestAskQuestion_BadRequests(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed", `{"document_identifier":`},
		{"null fields", `{"document_identifier":null,"question_text":null}`},
		{"blank question", `{"document_identifier":"abc123","question_text":"   "}`},
		{"missing id", `{"question_text":"Q"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := knownDocs("A")
			// Stub mirrors the service's validation for the cases that reach it.
			r := newTestRouter(New(&validatingDocs{svc}, nil, 0))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, newJSONRequest(http.MethodPost, "/questions", tc.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			var er ErrorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &er)
			if er.Code != ErrCodeBadRequest {
				t.Fatalf("code = %q", er.Code)
			}
			if svc.asked != 0 {
				t.Fatalf("invalid input must not reach the indexer stub")
			}
		})
	}
}

// validatingDocs adds the service's input checks in front of stubDocs.
type validatingDocs struct{ *stubDocs }

func (v *validatingDocs) AnswerQuestionRecorded(ctx context.Context, id, q string) (string, *domain.Exchange, error) {
	switch {
	case strings.TrimSpace(id) == "":
		return "", nil, services.ErrEmptyDocumentID
	case strings.TrimSpace(q) == "":
		return "", nil, services.ErrEmptyQuestion
	}
	return v.stubDocs.AnswerQuestionRecorded(ctx, id, q)
}

func TestAskQuestion_NotIndexedAndUpstream(t *testing.T) {
	svc := knownDocs("A")
	r := newTestRouter(New(svc, nil, 0))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, newJSONRequest(http.MethodPost, "/questions",
		`{"document_identifier":"ghost","question_text":"Q"}`))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), ErrCodeDocumentNotIndexed) {
		t.Fatalf("not indexed: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `\"ghost\"`) {
		t.Fatalf("message should name the identifier: %s", w.Body.String())
	}

	svc.answerErr = &indexer.QueryError{Status: 0, Message: "context deadline exceeded", Err: fmt.Errorf("timeout")}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, newJSONRequest(http.MethodPost, "/questions",
		`{"document_identifier":"abc123","question_text":"Q"}`))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("upstream: %d", w.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if er.Code != ErrCodeUpstreamFailed || er.Message != "context deadline exceeded" {
		t.Fatalf("unexpected envelope: %+v", er)
	}
}

func TestAskQuestion_IdempotentReplay(t *testing.T) {
	db := newHandlerDB(t)
	svc := knownDocs("Coverage X")
	r := newTestRouter(New(svc, db, 0))

	ask := func(client, key string) *httptest.ResponseRecorder {
		req := newJSONRequest(http.MethodPost, "/questions",
			`{"document_identifier":"abc123","question_text":"What is covered?"}`)
		req.Header.Set(middleware.HeaderClientID, client)
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := ask("acme", "k-1")
	if first.Code != http.StatusOK || first.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first: %d replayed=%q", first.Code, first.Header().Get(middleware.HeaderIdempotencyReplayed))
	}
	var a1 AskQuestionResponse
	_ = json.Unmarshal(first.Body.Bytes(), &a1)

	svc.answer = "changed upstream"
	second := ask("acme", "k-1")
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	var a2 AskQuestionResponse
	_ = json.Unmarshal(second.Body.Bytes(), &a2)
	if a2.AnswerText != "Coverage X" || a2.ExchangeID != a1.ExchangeID {
		t.Fatalf("replay mismatch: %+v vs %+v", a2, a1)
	}
	if svc.asked != 1 {
		t.Fatalf("replay must not query again, asked=%d", svc.asked)
	}

	// Keys are scoped per client.
	other := ask("globex", "k-1")
	if other.Header().Get(middleware.HeaderIdempotencyReplayed) != "" || svc.asked != 2 {
		t.Fatalf("other client must not replay; asked=%d", svc.asked)
	}

	// A malformed key is rejected before the handler.
	bad := ask("acme", "bad key")
	if bad.Code != http.StatusBadRequest || !strings.Contains(bad.Body.String(), "bad_idempotency_key") {
		t.Fatalf("bad key: %d %s", bad.Code, bad.Body.String())
	}
}

func TestAskQuestion_KeyReusedForDifferentQuestion(t *testing.T) {
	db := newHandlerDB(t)
	svc := knownDocs("Coverage X")
	r := newTestRouter(New(svc, db, 0))

	ask := func(question string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(AskQuestionRequest{DocumentID: "abc123", Question: question})
		req := newJSONRequest(http.MethodPost, "/questions", string(body))
		req.Header.Set(middleware.HeaderClientID, "acme")
		req.Header.Set(middleware.HeaderIdempotencyKey, "k-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := ask("What is covered?"); w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}

	// Surrounding whitespace is not a different question.
	same := ask("  What is covered?\n")
	if same.Code != http.StatusOK || same.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay for the same question: %d %s", same.Code, same.Body.String())
	}

	other := ask("Totally different question?")
	if other.Code != http.StatusUnprocessableEntity || !strings.Contains(other.Body.String(), ErrCodeIdempotencyReused) {
		t.Fatalf("expected 422 for a reused key, got %d %s", other.Code, other.Body.String())
	}
	if other.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("a refused request must not be marked as replayed")
	}
	if svc.asked != 1 {
		t.Fatalf("indexer should only be asked once, asked=%d", svc.asked)
	}
}

func TestDocumentIDFromBody_KeepsReadError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"document_identifier":"abc123","question_text":"` + strings.Repeat("q", 512) + `"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/questions", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Body = http.MaxBytesReader(w, c.Request.Body, 64)

	if got := DocumentIDFromBody(c); got != "" {
		t.Fatalf("truncated body should yield no id, got %q", got)
	}
	var req AskQuestionRequest
	err := c.ShouldBind(&req)
	if !isBodyTooLarge(err) {
		t.Fatalf("binding should still see the size error, got %v", err)
	}
}

func TestDocumentIDFromBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name, ct, body, want string
	}{
		{"json", "application/json", `{"document_identifier":" abc123 ","question_text":"q"}`, "abc123"},
		{"json number", "application/json", `{"document_identifier":7}`, ""},
		{"json null", "application/json", `{"document_identifier":null}`, ""},
		{"invalid json", "application/json", `{"document_identifier":`, ""},
		{"form", "application/x-www-form-urlencoded; charset=utf-8", "document_identifier=abc123&question_text=q", "abc123"},
		{"multipart untouched", "multipart/form-data; boundary=x", "--x--", ""},
		{"no content type", "", "document_identifier=abc123", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "/questions", bytes.NewBufferString(tc.body))
			if tc.ct != "" {
				c.Request.Header.Set("Content-Type", tc.ct)
			}
			if got := DocumentIDFromBody(c); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
			rest, _ := io.ReadAll(c.Request.Body)
			if string(rest) != tc.body {
				t.Fatalf("body not restored: %q", rest)
			}
		})
	}
}
