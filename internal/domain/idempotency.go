package domain

import "time"

// Idempotency remembers which exchange answered a question request carrying a
// given Idempotency-Key, keyed by (client_id, document_id, key). A retry with
// the same key is served from the stored exchange instead of re-querying the
// indexer. RequestHash fingerprints the question so a key reused for a
// different question can be refused.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ClientID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_client_doc_key,priority:1"`
	DocumentID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_client_doc_key,priority:2"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_client_doc_key,priority:3"`
	RequestHash string    `gorm:"type:TEXT NOT NULL;default:''"`
	ExchangeID  string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
