package models

import (
	"github.com/google/uuid"
)

// Modality identifies the kind of content a chunk holds.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityTable Modality = "table"
	ModalityImage Modality = "image"
)

// IsTextual reports whether the modality is returned as textual context.
// Tables are treated as text at retrieval time; only images are not.
func (m Modality) IsTextual() bool {
	return m == ModalityText || m == ModalityTable
}

// Chunk is the unit of retrievable knowledge. The summary is what gets
// embedded and searched; the content is what gets returned. Content is plain
// text for text chunks, HTML markup for tables, and a base64-encoded payload
// for images. Chunks are immutable once written.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Modality   Modality  `json:"modality"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary"`
	Distance   float64   `json:"distance,omitempty"` // Vector similarity distance
}

// RetrievalResult holds the outcome of one retrieval pass. Texts are
// deduplicated and ordered by relevance; images are neither deduplicated nor
// subject to the minimum-yield policy.
type RetrievalResult struct {
	Texts  []string `json:"texts"`
	Images []string `json:"images"`
}
