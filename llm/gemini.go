package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
)

// GeminiProvider adapts the Gemini multimodal API. Images are sent as raw
// base64-decoded blobs with explicit MIME type metadata; structured output
// uses the native response-schema mode.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

// NewGeminiProvider wraps an initialized genai client. requestsPerSecond
// bounds outgoing calls to respect provider rate limits; <= 0 disables
// pacing.
func NewGeminiProvider(client *genai.Client, model string, requestsPerSecond float64) *GeminiProvider {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &GeminiProvider{
		client:  client,
		model:   model,
		limiter: limiter,
	}
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return "gemini" }

// Complete invokes the model with one composite message. When schema is
// provided, the model is constrained to emit JSON conforming to it.
func (p *GeminiProvider) Complete(ctx context.Context, msg Message, schema *Schema) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(0)
	if schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(schema)
	}

	parts := make([]genai.Part, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		if part.IsImage() {
			raw, err := base64.StdEncoding.DecodeString(part.ImageBase64)
			if err != nil {
				return "", fmt.Errorf("failed to decode image payload: %w", err)
			}
			parts = append(parts, genai.Blob{MIMEType: part.ImageMIME, Data: raw})
		} else {
			parts = append(parts, genai.Text(part.Text))
		}
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrBlockedPrompt, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			log.Printf("Warning: Gemini candidate finished with reason: %s", candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
	}

	if out.Len() == 0 {
		return "", ErrEmptyResponse
	}

	return out.String(), nil
}

func toGenaiSchema(schema *Schema) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(schema.Properties))
	for name, prop := range schema.Properties {
		properties[name] = toGenaiProperty(prop)
	}
	return &genai.Schema{
		Type:        genai.TypeObject,
		Description: schema.Description,
		Properties:  properties,
	}
}

func toGenaiProperty(prop Property) *genai.Schema {
	out := &genai.Schema{
		Type:        toGenaiType(prop.Type),
		Description: prop.Description,
	}
	if out.Type == genai.TypeArray {
		if prop.Items != nil {
			out.Items = toGenaiProperty(*prop.Items)
		} else {
			out.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	return out
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
