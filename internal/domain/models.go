// Package domain defines the persistence models used for diagnostics. These
// rows are an audit trail only; the session cache is never rebuilt from them.
package domain

import "time"

// Index event outcomes.
const (
	IndexStatusIndexed = "indexed"
	IndexStatusFailed  = "failed"
)

// IndexEvent records one upload-and-index attempt.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - DocumentID: identifier minted by the indexer; empty when indexing failed.
//   - FileName / Size: what the client sent.
//   - Status: "indexed" or "failed" (enforced by DB constraint).
//   - Error: upstream or validation message for failed attempts.
type IndexEvent struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	DocumentID string    `json:"document_id" gorm:"type:varchar(255);index:idx_index_events_doc"`
	FileName   string    `json:"file_name"   gorm:"type:varchar(255);not null"`
	Size       int64     `json:"size"        gorm:"not null"`
	Status     string    `json:"status"      gorm:"type:varchar(16);not null;check:status IN ('indexed','failed')"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for IndexEvent.
func (IndexEvent) TableName() string { return "index_events" }

// Exchange is a question answered against an indexed document.
type Exchange struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	DocumentID string    `json:"document_id" gorm:"type:varchar(255);not null;index:idx_doc_exchanges,priority:1"`
	Question   string    `json:"question"    gorm:"type:text;not null"`
	Answer     string    `json:"answer"      gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index:idx_doc_exchanges,priority:2"`
}

// TableName returns the database table name for Exchange.
func (Exchange) TableName() string { return "exchanges" }
