// Package services – DocumentService
//
// This file implements DocumentService, the component that owns document
// sessions. It validates uploads, stages them on disk while the indexer works,
// records successful indexing in the session cache, and routes questions to
// the indexer only for identifiers it has a session for.
//
// Sessions live only in memory. The audit tables written here are diagnostics
// and are never read back to rebuild the cache.
//
// Observability: all public methods are OpenTelemetry-instrumented.

package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-policy-qa/internal/domain"
	"github.com/tbourn/go-policy-qa/internal/indexer"
	"github.com/tbourn/go-policy-qa/internal/pdfdoc"
	"github.com/tbourn/go-policy-qa/internal/repo"
	"github.com/tbourn/go-policy-qa/internal/session"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/unicode/norm"
)

// UploadedMessage is returned with every successful upload.
const UploadedMessage = "uploaded & indexed"

// Indexer is the part of indexer.Client the service depends on.
type Indexer interface {
	Index(ctx context.Context, file io.Reader, filename string) (indexer.IndexResult, error)
	Query(ctx context.Context, documentID, question string) (string, error)
}

// FileUpload is a document as received from the client.
type FileUpload struct {
	Name      string
	MediaType string
	Data      []byte
}

// UploadResult is returned by UploadAndIndex.
type UploadResult struct {
	DocumentID string `json:"document_identifier"`
	Message    string `json:"message"`
}

// DocumentService coordinates uploads, indexing and questions.
type DocumentService struct {
	Sessions session.Cache
	Indexer  Indexer

	// DB receives the audit trail. Nil disables auditing and history.
	DB *gorm.DB

	// UploadDir is where uploads are staged while being indexed. Empty means
	// os.TempDir().
	UploadDir string

	// Now is overridable in tests.
	Now func() time.Time
}

// UploadAndIndex validates an upload, sends it to the indexer and, on
// success, stores a session for the returned identifier. Re-uploading under an
// existing identifier replaces its session.
func (s *DocumentService) UploadAndIndex(ctx context.Context, up FileUpload) (UploadResult, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "UploadAndIndex",
		trace.WithAttributes(
			attribute.String("file.name", up.Name),
			attribute.Int("file.size", len(up.Data)),
		),
	)
	defer span.End()

	lg := loggerFrom(ctx)
	name := pdfdoc.CleanFilename(up.Name)

	info, err := pdfdoc.Inspect(name, up.MediaType, up.Data)
	if err != nil {
		if errors.Is(err, pdfdoc.ErrEmpty) {
			return UploadResult{}, ErrEmptyFile
		}
		return UploadResult{}, ErrUnsupportedType
	}

	st, err := s.stage(name, up.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return UploadResult{}, err
	}
	defer st.release(lg)

	res, err := s.indexStaged(ctx, st, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		st.release(lg)
		s.recordIndexEvent(ctx, "", name, len(up.Data), domain.IndexStatusFailed, err.Error())
		return UploadResult{}, err
	}

	id := res.DocumentID
	span.SetAttributes(attribute.String("document.id", id))
	if s.Sessions.Has(id) {
		lg.Info().Str("document_id", id).Msg("document already indexed; replacing session")
	}
	s.Sessions.Put(id, domain.SessionRecord{
		DocumentID: id,
		File: domain.FileMetadata{
			Name:        name,
			MediaType:   info.MediaType,
			Size:        int64(len(up.Data)),
			StoragePath: st.path,
			Pages:       info.Pages,
		},
		IndexedAt:     s.now(),
		IndexResponse: res.Raw,
	})

	st.release(lg)
	s.recordIndexEvent(ctx, id, name, len(up.Data), domain.IndexStatusIndexed, "")

	lg.Info().Str("document_id", id).Str("file", name).Int("pages", info.Pages).Msg("document indexed")
	return UploadResult{DocumentID: id, Message: UploadedMessage}, nil
}

// AnswerQuestion answers a question against a document indexed in this
// process. An unknown identifier yields a *NotFoundError without contacting
// the indexer. Indexer failures are returned unchanged.
func (s *DocumentService) AnswerQuestion(ctx context.Context, documentID, question string) (string, error) {
	answer, _, err := s.AnswerQuestionRecorded(ctx, documentID, question)
	return answer, err
}

// AnswerQuestionRecorded is AnswerQuestion that also returns the stored
// exchange, for callers that need its ID (idempotent replays). The exchange
// is nil when auditing is disabled or the write failed.
func (s *DocumentService) AnswerQuestionRecorded(ctx context.Context, documentID, question string) (string, *domain.Exchange, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "AnswerQuestion",
		trace.WithAttributes(attribute.String("document.id", documentID)),
	)
	defer span.End()

	documentID = strings.TrimSpace(documentID)
	question = cleanQuestion(question)
	if documentID == "" {
		return "", nil, ErrEmptyDocumentID
	}
	if question == "" {
		return "", nil, ErrEmptyQuestion
	}

	// Unknown identifiers never reach the indexer.
	if !s.Sessions.Has(documentID) {
		return "", nil, &NotFoundError{ID: documentID}
	}

	answer, err := s.Indexer.Query(ctx, documentID, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}
	return answer, s.recordExchange(ctx, documentID, question, answer), nil
}

// AnalyzeWithMultipleQuestions uploads a document once and then asks each
// non-blank question in order, one at a time. The first failure aborts the
// batch; answers collected so far are discarded and the error is returned as
// a *QuestionError naming the failing question.
func (s *DocumentService) AnalyzeWithMultipleQuestions(ctx context.Context, up FileUpload, questions []string) (UploadResult, []string, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "AnalyzeWithMultipleQuestions",
		trace.WithAttributes(attribute.Int("questions", len(questions))),
	)
	defer span.End()

	asked := make([]string, 0, len(questions))
	for _, q := range questions {
		if q = cleanQuestion(q); q != "" {
			asked = append(asked, q)
		}
	}
	if len(asked) == 0 {
		return UploadResult{}, nil, ErrNoQuestions
	}

	res, err := s.UploadAndIndex(ctx, up)
	if err != nil {
		return UploadResult{}, nil, err
	}

	answers := make([]string, 0, len(asked))
	for i, q := range asked {
		a, err := s.AnswerQuestion(ctx, res.DocumentID, q)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return UploadResult{}, nil, &QuestionError{Index: i, Question: q, Err: err}
		}
		answers = append(answers, a)
	}
	return res, answers, nil
}

// Describe returns a copy of the session recorded for documentID.
func (s *DocumentService) Describe(ctx context.Context, documentID string) (domain.SessionRecord, error) {
	_, span := otel.Tracer("services/DocumentService").Start(ctx, "Describe",
		trace.WithAttributes(attribute.String("document.id", documentID)),
	)
	defer span.End()

	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return domain.SessionRecord{}, ErrEmptyDocumentID
	}
	rec, ok := s.Sessions.Get(documentID)
	if !ok {
		return domain.SessionRecord{}, &NotFoundError{ID: documentID}
	}
	return rec, nil
}

// History returns a page of the exchanges recorded for a document this
// process has a session for.
func (s *DocumentService) History(ctx context.Context, documentID string, page, pageSize int) ([]domain.Exchange, int64, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, 0, ErrEmptyDocumentID
	}
	if !s.Sessions.Has(documentID) {
		return nil, 0, &NotFoundError{ID: documentID}
	}
	if s.DB == nil {
		return []domain.Exchange{}, 0, nil
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountExchanges(ctx, s.DB, documentID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Exchange{}, 0, nil
	}
	items, err := repo.ListExchangesPage(ctx, s.DB, documentID, offset, pageSize)
	return items, total, err
}

// Exchange fetches a recorded exchange by ID.
func (s *DocumentService) Exchange(ctx context.Context, id string) (*domain.Exchange, error) {
	if s.DB == nil {
		return nil, repo.ErrNotFound
	}
	return repo.GetExchange(ctx, s.DB, id)
}

// ---- staging ----

// staged is an upload copied to disk for the lifetime of one indexing call.
// release removes it exactly once; failures are logged and never returned.
type staged struct {
	path string
	once sync.Once
}

func (s *DocumentService) stage(name string, data []byte) (*staged, error) {
	dir := s.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, uuid.NewString()+"-"+name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &staged{path: path}, nil
}

// indexStaged sends the staged copy, not the request buffer, to the indexer.
func (s *DocumentService) indexStaged(ctx context.Context, st *staged, name string) (indexer.IndexResult, error) {
	f, err := os.Open(st.path)
	if err != nil {
		return indexer.IndexResult{}, err
	}
	defer f.Close()
	return s.Indexer.Index(ctx, f, name)
}

func (st *staged) release(lg *zerolog.Logger) {
	st.once.Do(func() {
		if err := os.Remove(st.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			lg.Warn().Err(err).Str("path", st.path).Msg("failed to remove staged upload")
		}
	})
}

// ---- audit (best-effort) ----

func (s *DocumentService) recordIndexEvent(ctx context.Context, id, name string, size int, status, msg string) {
	if s.DB == nil {
		return
	}
	if _, err := repo.CreateIndexEvent(ctx, s.DB, id, name, int64(size), status, msg); err != nil {
		loggerFrom(ctx).Warn().Err(err).Str("document_id", id).Msg("failed to record index event")
	}
}

func (s *DocumentService) recordExchange(ctx context.Context, id, question, answer string) *domain.Exchange {
	if s.DB == nil {
		return nil
	}
	e, err := repo.CreateExchange(ctx, s.DB, id, question, answer)
	if err != nil {
		loggerFrom(ctx).Warn().Err(err).Str("document_id", id).Msg("failed to record exchange")
		return nil
	}
	return e
}

// ---- helpers ----

func (s *DocumentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// cleanQuestion trims and NFC-normalizes a question.
func cleanQuestion(q string) string {
	return norm.NFC.String(strings.TrimSpace(q))
}

// QuestionFingerprint is a stable hex digest of a question after the same
// cleanup AnswerQuestion applies, so cosmetic whitespace does not change it.
func QuestionFingerprint(q string) string {
	sum := sha256.Sum256([]byte(cleanQuestion(q)))
	return hex.EncodeToString(sum[:])
}

// loggerFrom returns the request-scoped logger carried by ctx, or the global
// logger when none was attached.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
