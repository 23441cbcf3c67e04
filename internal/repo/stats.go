package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-policy-qa/internal/domain"
)

// ExchangesStats returns the number of exchanges recorded for a document and
// the newest CreatedAt among them, for weak ETags on the history endpoint.
// When there are no rows the timestamp is nil.
func ExchangesStats(ctx context.Context, db *gorm.DB, documentID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Exchange{}).Where("document_id = ?", documentID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
