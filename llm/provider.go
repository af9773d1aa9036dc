package llm

import (
	"context"
	"errors"
)

var (
	ErrEmptyResponse = errors.New("model returned empty content")
	ErrBlockedPrompt = errors.New("model blocked the prompt")
)

// Part is one block of a composite message: either text or an inline image
// carried as a base64 payload with its MIME type. Exactly one of Text or
// ImageBase64 is set.
type Part struct {
	Text        string
	ImageBase64 string
	ImageMIME   string
}

// TextPart builds a text block.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image block. mimeType defaults to image/png
// when empty, matching how layout extraction emits payloads.
func ImagePart(base64Payload, mimeType string) Part {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return Part{ImageBase64: base64Payload, ImageMIME: mimeType}
}

// IsImage reports whether the part carries an image payload.
func (p Part) IsImage() bool {
	return p.ImageBase64 != ""
}

// Message is one ordered composite message sent to a provider.
type Message struct {
	Parts []Part
}

// Property describes one field of a structured-output schema.
type Property struct {
	Type        string // "string", "number", "boolean", "array", "object"
	Description string
	Items       *Property // element type for arrays
}

// Schema is the structural contract a schema-constrained completion must
// conform to. Providers translate it to their native structured-output
// mechanism; when nil the completion is free text.
type Schema struct {
	Description string
	Properties  map[string]Property
}

// Provider is a language-model adapter. Each implementation owns its own
// image-encoding convention and structured-output wiring, so callers never
// branch on provider identity.
type Provider interface {
	Name() string
	Complete(ctx context.Context, msg Message, schema *Schema) (string, error)
}
