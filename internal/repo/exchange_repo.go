package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// CreateExchange records an answered question.
func CreateExchange(ctx context.Context, db *gorm.DB, documentID, question, answer string) (*domain.Exchange, error) {
	e := &domain.Exchange{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Question:   question,
		Answer:     answer,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// GetExchange fetches an exchange by ID, or ErrNotFound.
func GetExchange(ctx context.Context, db *gorm.DB, id string) (*domain.Exchange, error) {
	var e domain.Exchange
	if err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// CountExchanges uses a raw COUNT so a missing table surfaces as an error.
func CountExchanges(ctx context.Context, db *gorm.DB, documentID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM exchanges WHERE document_id = ?", documentID).Scan(&total).Error
	return total, err
}

// ListExchangesPage returns a page ordered (CreatedAt ASC, ID ASC).
func ListExchangesPage(ctx context.Context, db *gorm.DB, documentID string, offset, limit int) ([]domain.Exchange, error) {
	var out []domain.Exchange
	err := db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
