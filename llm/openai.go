package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OpenAIProvider adapts any OpenAI-compatible chat-completions API. Images
// are sent as data-URI image_url blocks (data:<mime>;base64,<payload>);
// structured output uses JSON response mode with the field contract spelled
// out in a system message.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// OpenAIConfig configures the chat-completions client.
type OpenAIConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewOpenAIProvider creates a chat-completions provider from configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

// NewOpenAIProviderFromEnv builds the provider from OPENAI_* environment
// variables.
func NewOpenAIProviderFromEnv() (*OpenAIProvider, error) {
	return NewOpenAIProvider(OpenAIConfig{
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
	})
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai" }

type openAIContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// Complete invokes the model with one composite user message.
func (p *OpenAIProvider) Complete(ctx context.Context, msg Message, schema *Schema) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	blocks := make([]openAIContentBlock, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		if part.IsImage() {
			blocks = append(blocks, openAIContentBlock{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: DataURI(part.ImageBase64, part.ImageMIME)},
			})
		} else {
			blocks = append(blocks, openAIContentBlock{Type: "text", Text: part.Text})
		}
	}

	messages := make([]openAIMessage, 0, 2)
	reqBody := openAIRequest{
		Model:       p.model,
		Temperature: 0,
	}
	if schema != nil {
		messages = append(messages, openAIMessage{
			Role:    "system",
			Content: schemaInstruction(schema),
		})
		reqBody.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}
	messages = append(messages, openAIMessage{Role: "user", Content: blocks})
	reqBody.Messages = messages

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: %d - %s", resp.StatusCode, apiResp.Error.Message)
	}
	if apiResp.Error.Message != "" {
		return "", fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return apiResp.Choices[0].Message.Content, nil
}

// DataURI renders a base64 payload in the data-URI convention this provider
// family expects.
func DataURI(base64Payload, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64Payload)
}

// schemaInstruction spells the schema out as a system instruction, since the
// chat-completions JSON mode constrains shape but not field names.
func schemaInstruction(schema *Schema) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object")
	if schema.Description != "" {
		b.WriteString(": ")
		b.WriteString(schema.Description)
	}
	b.WriteString(". Fields:\n")

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop := schema.Properties[name]
		b.WriteString(fmt.Sprintf("- %s (%s)", name, prop.Type))
		if prop.Description != "" {
			b.WriteString(": ")
			b.WriteString(prop.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("Omit fields with no supporting data. Output JSON only, no markdown fences.")
	return b.String()
}
