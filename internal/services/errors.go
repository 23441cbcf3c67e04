// Package services defines the document-session business logic: indexing an
// uploaded PDF, answering questions against it, and reading back what the
// process knows about a session. This file centralizes service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input validation error below so callers
// can classify them with a single errors.Is check.
var ErrValidation = errors.New("invalid input")

// Validation errors.
var (
	// ErrEmptyFile is returned when an upload carries no bytes.
	ErrEmptyFile = fmt.Errorf("%w: file is empty", ErrValidation)

	// ErrUnsupportedType is returned when an upload is not a PDF by extension,
	// declared media type or content.
	ErrUnsupportedType = fmt.Errorf("%w: only PDF documents are accepted", ErrValidation)

	// ErrEmptyDocumentID is returned when a question names no document.
	ErrEmptyDocumentID = fmt.Errorf("%w: document identifier is empty", ErrValidation)

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = fmt.Errorf("%w: question is empty", ErrValidation)

	// ErrNoQuestions is returned by a batch request with no non-blank
	// questions. It is detected before the document is uploaded.
	ErrNoQuestions = fmt.Errorf("%w: at least one question is required", ErrValidation)
)

// ErrDocumentNotIndexed is matched by every NotFoundError.
var ErrDocumentNotIndexed = errors.New("document not indexed")

// NotFoundError reports a question or lookup against an identifier this
// process has no session for.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %q has not been indexed in this session; upload and index it first", e.ID)
}

// Is makes errors.Is(err, ErrDocumentNotIndexed) hold for any NotFoundError.
func (e *NotFoundError) Is(target error) bool { return target == ErrDocumentNotIndexed }

// QuestionError attributes a batch failure to the question that caused it.
// Index is zero-based over the questions actually asked (blanks skipped).
type QuestionError struct {
	Index    int
	Question string
	Err      error
}

func (e *QuestionError) Error() string {
	return fmt.Sprintf("question %d (%q) failed: %v", e.Index+1, e.Question, e.Err)
}

func (e *QuestionError) Unwrap() error { return e.Err }
