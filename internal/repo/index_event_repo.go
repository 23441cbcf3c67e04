package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// CreateIndexEvent appends one upload-and-index outcome. documentID is empty
// for failed attempts; errMsg is empty for successful ones.
func CreateIndexEvent(ctx context.Context, db *gorm.DB, documentID, fileName string, size int64, status, errMsg string) (*domain.IndexEvent, error) {
	ev := &domain.IndexEvent{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		FileName:   fileName,
		Size:       size,
		Status:     status,
		Error:      errMsg,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListIndexEvents returns the most recent events for a document, newest first.
func ListIndexEvents(ctx context.Context, db *gorm.DB, documentID string, limit int) ([]domain.IndexEvent, error) {
	var out []domain.IndexEvent
	q := db.WithContext(ctx).Where("document_id = ?", documentID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
