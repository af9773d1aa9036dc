package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the indexing status of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "pending"
	DocumentStatusIndexed DocumentStatus = "indexed"
	DocumentStatusFailed  DocumentStatus = "failed"
)

// Document represents an uploaded source document. Its ID doubles as the
// report identifier: every chunk indexed from the document is tagged with it,
// and report/chat queries are scoped by it.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	Size        int64          `json:"size"`
	StoragePath string         `json:"storage_path"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	CreatedAt   time.Time      `json:"created_at"`
}
