package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmbeddingFailed is returned when the embedding API exhausts its retries.
var ErrEmbeddingFailed = errors.New("failed to generate embedding")

const (
	geminiEmbeddingAPI       = "https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:embedContent"
	geminiEmbeddingModel     = "models/gemini-embedding-001"
	embeddingDimensions      = 768
	embeddingMaxRetries      = 3
	embeddingInitialBackoff  = time.Second
	taskTypeRetrievalQuery   = "RETRIEVAL_QUERY"
	taskTypeRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// Embedder converts text into a fixed-length numeric vector. Queries and
// documents use distinct task hints so asymmetric retrieval models embed
// them into matching spaces.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocument(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}

// GeminiEmbedder calls the Gemini embedContent REST API.
type GeminiEmbedder struct {
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGeminiEmbedder creates an embedder. requestsPerSecond <= 0 disables
// request pacing.
func NewGeminiEmbedder(apiKey string, requestsPerSecond float64) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &GeminiEmbedder{
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
	}, nil
}

// NewGeminiEmbedderFromEnv builds the embedder from GEMINI_API_KEY.
func NewGeminiEmbedderFromEnv() (*GeminiEmbedder, error) {
	return NewGeminiEmbedder(os.Getenv("GEMINI_API_KEY"), 0)
}

type embeddingRequest struct {
	Model                string       `json:"model"`
	Content              contentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

type contentInput struct {
	Parts []partInput `json:"parts"`
}

type partInput struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	Embedding embeddingData `json:"embedding"`
}

type embeddingData struct {
	Values []float64 `json:"values"`
}

// Dimensions returns the embedding vector length.
func (e *GeminiEmbedder) Dimensions() int { return embeddingDimensions }

// EmbedQuery embeds retrieval-query text.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return e.embed(ctx, text, taskTypeRetrievalQuery)
}

// EmbedDocument embeds indexable document text (chunk summaries).
func (e *GeminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float64, error) {
	return e.embed(ctx, text, taskTypeRetrievalDocument)
}

func (e *GeminiEmbedder) embed(ctx context.Context, text, taskType string) ([]float64, error) {
	reqBody := embeddingRequest{
		Model: geminiEmbeddingModel,
		Content: contentInput{
			Parts: []partInput{{Text: text}},
		},
		TaskType:             taskType,
		OutputDimensionality: embeddingDimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := embeddingInitialBackoff
	for attempt := 0; attempt < embeddingMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", geminiEmbeddingAPI, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			if attempt == embeddingMaxRetries-1 {
				return nil, fmt.Errorf("failed to send request after %d attempts: %w", embeddingMaxRetries, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var apiResp embeddingResponse
			if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
				resp.Body.Close()
				if attempt == embeddingMaxRetries-1 {
					return nil, fmt.Errorf("failed to decode response: %w", err)
				}
				continue
			}
			resp.Body.Close()
			return normalize(apiResp.Embedding.Values), nil
		}

		resp.Body.Close()

		// Don't retry on 400 or 401 errors
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("API error: %d", resp.StatusCode)
		}

		if attempt == embeddingMaxRetries-1 {
			return nil, fmt.Errorf("API error after %d attempts: %d", embeddingMaxRetries, resp.StatusCode)
		}
	}

	return nil, ErrEmbeddingFailed
}

// normalize scales the vector to unit length so cosine distance behaves.
func normalize(embedding []float64) []float64 {
	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}
	return embedding
}
