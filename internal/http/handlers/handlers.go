// Package handlers exposes the document-session API over HTTP.
//
// Handlers are transport-thin: they decode uploads and form/JSON bodies, call
// the DocumentService, and translate results and errors into responses.
package handlers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-policy-qa/internal/domain"
	"github.com/tbourn/go-policy-qa/internal/services"
)

// DocumentService is the subset of services.DocumentService used by the
// HTTP layer. Implementations must be safe for concurrent use.
type DocumentService interface {
	// UploadAndIndex validates and indexes an upload, creating its session.
	UploadAndIndex(ctx context.Context, up services.FileUpload) (services.UploadResult, error)
	// AnswerQuestionRecorded answers a question and returns the stored exchange.
	AnswerQuestionRecorded(ctx context.Context, documentID, question string) (string, *domain.Exchange, error)
	// AnalyzeWithMultipleQuestions uploads once and answers every question.
	AnalyzeWithMultipleQuestions(ctx context.Context, up services.FileUpload, questions []string) (services.UploadResult, []string, error)
	// Describe returns the session metadata for an indexed document.
	Describe(ctx context.Context, documentID string) (domain.SessionRecord, error)
	// History returns a page of recorded exchanges and the total count.
	History(ctx context.Context, documentID string, page, pageSize int) ([]domain.Exchange, int64, error)
	// Exchange fetches one recorded exchange.
	Exchange(ctx context.Context, id string) (*domain.Exchange, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	docs DocumentService

	// db backs idempotent replays and history ETags. Nil disables both.
	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs Handlers. idemTTL <= 0 defaults to 24h.
func New(docs DocumentService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{docs: docs, db: db, idemTTL: idemTTL}
}
