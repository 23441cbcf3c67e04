// Package domain defines the data model shared by the session cache, the
// document service, and the audit repositories.
package domain

import (
	"encoding/json"
	"time"
)

// FileMetadata describes an uploaded document as it was when it was indexed.
type FileMetadata struct {
	Name        string `json:"name"`
	MediaType   string `json:"media_type"`
	Size        int64  `json:"size"`
	StoragePath string `json:"storage_path"`
	// Pages is 0 when the PDF could not be parsed locally.
	Pages int `json:"pages"`
}

// SessionRecord is the cached state for one indexed document. A record is only
// ever created after the indexer accepted the document, and it is replaced as
// a whole on re-upload.
type SessionRecord struct {
	DocumentID    string          `json:"document_identifier"`
	File          FileMetadata    `json:"file"`
	IndexedAt     time.Time       `json:"indexed_at"`
	IndexResponse json.RawMessage `json:"index_response,omitempty"`
}

// Clone returns a deep copy so callers never share the cached raw response.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	if r.IndexResponse != nil {
		out.IndexResponse = append(json.RawMessage(nil), r.IndexResponse...)
	}
	return out
}
