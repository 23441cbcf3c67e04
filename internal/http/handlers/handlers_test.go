package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-policy-qa/internal/domain"
	"github.com/tbourn/go-policy-qa/internal/http/middleware"
	"github.com/tbourn/go-policy-qa/internal/services"
)

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.IndexEvent{}, &domain.Exchange{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---------- stub service ----------

type stubDocs struct {
	mu sync.Mutex

	known map[string]domain.SessionRecord

	uploadRes services.UploadResult
	uploadErr error
	uploaded  []services.FileUpload

	answer    string
	answerErr error
	asked     int
	exchanges map[string]*domain.Exchange

	analyzeAnswers []string
	analyzeErr     error
	analyzedWith   []string

	history    []domain.Exchange
	historyTot int64
}

func newStubDocs() *stubDocs {
	return &stubDocs{
		known:     map[string]domain.SessionRecord{},
		exchanges: map[string]*domain.Exchange{},
	}
}

func (s *stubDocs) UploadAndIndex(_ context.Context, up services.FileUpload) (services.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = append(s.uploaded, up)
	if s.uploadErr != nil {
		return services.UploadResult{}, s.uploadErr
	}
	return s.uploadRes, nil
}

func (s *stubDocs) AnswerQuestionRecorded(_ context.Context, documentID, question string) (string, *domain.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked++
	if s.answerErr != nil {
		return "", nil, s.answerErr
	}
	if _, ok := s.known[documentID]; !ok {
		return "", nil, &services.NotFoundError{ID: documentID}
	}
	ex := &domain.Exchange{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Question:   question,
		Answer:     s.answer,
		CreatedAt:  time.Now().UTC(),
	}
	s.exchanges[ex.ID] = ex
	return s.answer, ex, nil
}

func (s *stubDocs) AnalyzeWithMultipleQuestions(_ context.Context, up services.FileUpload, questions []string) (services.UploadResult, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = append(s.uploaded, up)
	s.analyzedWith = questions
	if s.analyzeErr != nil {
		return services.UploadResult{}, nil, s.analyzeErr
	}
	return s.uploadRes, s.analyzeAnswers, nil
}

func (s *stubDocs) Describe(_ context.Context, documentID string) (domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.known[documentID]
	if !ok {
		return domain.SessionRecord{}, &services.NotFoundError{ID: documentID}
	}
	return rec, nil
}

func (s *stubDocs) History(_ context.Context, documentID string, _, _ int) ([]domain.Exchange, int64, error) {
	if _, ok := s.known[documentID]; !ok {
		return nil, 0, &services.NotFoundError{ID: documentID}
	}
	return s.history, s.historyTot, nil
}

func (s *stubDocs) Exchange(_ context.Context, id string) (*domain.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex, ok := s.exchanges[id]; ok {
		return ex, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ---------- router + request helpers ----------

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		c.Next()
	})
	r.Use(middleware.ClientID())
	r.POST("/documents", h.UploadDocument)
	r.POST("/documents/analyze", h.AnalyzeDocument)
	r.GET("/documents/:id", h.GetDocument)
	r.GET("/documents/:id/questions", h.ListExchanges)
	r.POST("/questions",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: DocumentIDFromBody}, nil),
		h.AskQuestion,
	)
	return r
}

type formFile struct {
	name, mediaType string
	data            []byte
}

// multipartBody builds a multipart request body. A nil file omits the part.
func multipartBody(t *testing.T, file *formFile, fields map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if file != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.name))
		hdr.Set("Content-Type", file.mediaType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(file.data)
	}
	for k, vs := range fields {
		for _, v := range vs {
			_ = mw.WriteField(k, v)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func pdfFile() *formFile {
	return &formFile{name: "policy.pdf", mediaType: "application/pdf", data: []byte("%PDF-1.4\n%%EOF\n")}
}

func newJSONRequest(method, path, body string) *http.Request {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func ginTestContext(w http.ResponseWriter, target string) (*gin.Context, *gin.Engine) {
	c, r := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, target, nil)
	return c, r
}
