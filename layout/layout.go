// Package layout adapts external document-layout extraction into tagged
// elements the indexing pipeline can consume without inspecting upstream
// type names.
package layout

import (
	"context"
	"io"
)

// ElementKind tags a partitioned element with its modality.
type ElementKind string

const (
	KindText  ElementKind = "text"
	KindTable ElementKind = "table"
	KindImage ElementKind = "image"
)

// Element is one atomic unit of parsed document content. The kind decides
// which fields are set: text elements carry Text; table elements carry both
// Text (plain rendering) and TableHTML (markup rendering); image elements
// carry a base64 payload with its MIME type.
type Element struct {
	Kind        ElementKind
	Text        string
	TableHTML   string
	ImageBase64 string
	ImageMIME   string
}

// Partitioner extracts an ordered sequence of tagged elements from a
// document.
type Partitioner interface {
	Partition(ctx context.Context, r io.Reader, filename string) ([]Element, error)
}
