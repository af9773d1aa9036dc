package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"deallens-backend/llm"
	"deallens-backend/models"
)

// ErrSynthesisFailed is returned when every synthesis attempt failed. Callers
// treat it as a missing answer, not a fatal condition.
var ErrSynthesisFailed = errors.New("synthesis failed after all attempts")

const (
	defaultSynthesisAttempts = 2
	defaultSynthesisBackoff  = 60 * time.Second

	// Only the first entries of the (already relevance-ordered) context make
	// it into the prompt.
	maxContextChunks = 5
)

// SynthesisService assembles one composite prompt from retrieved context and
// invokes a model provider, retrying on failure with a fixed backoff.
type SynthesisService struct {
	provider    llm.Provider
	maxAttempts int
	backoff     time.Duration
}

// SynthesisServiceOption is a functional option for SynthesisService
type SynthesisServiceOption func(*SynthesisService)

// SynthesisWithProvider sets the model provider
func SynthesisWithProvider(provider llm.Provider) SynthesisServiceOption {
	return func(s *SynthesisService) {
		s.provider = provider
	}
}

// SynthesisWithRetryPolicy overrides the attempt count and the backoff
// between attempts.
func SynthesisWithRetryPolicy(maxAttempts int, backoff time.Duration) SynthesisServiceOption {
	return func(s *SynthesisService) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// NewSynthesisService creates a new synthesis service
func NewSynthesisService(opts ...SynthesisServiceOption) *SynthesisService {
	s := &SynthesisService{
		maxAttempts: defaultSynthesisAttempts,
		backoff:     defaultSynthesisBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize answers the query from the retrieved context. When schema is
// non-nil the provider is constrained to structured output. On provider
// failure it waits the configured backoff and retries; the wait aborts if
// the context is cancelled. After the final attempt fails it returns
// ErrSynthesisFailed wrapping the last provider error.
func (s *SynthesisService) Synthesize(
	ctx context.Context,
	query string,
	retrieved *models.RetrievalResult,
	schema *llm.Schema,
) (string, error) {
	if s.provider == nil {
		return "", errors.New("model provider not set")
	}

	msg := buildSynthesisMessage(query, retrieved)

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			log.Printf("Warning: synthesis attempt %d failed: %v. Waiting %s before retrying.", attempt, lastErr, s.backoff)
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		answer, err := s.provider.Complete(ctx, msg, schema)
		if err == nil && answer != "" {
			return answer, nil
		}
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, lastErr)
}

// buildSynthesisMessage lays out the composite message: one context text
// block holding the first chunks of textual context, one image block per
// retrieved image, and the literal question last.
func buildSynthesisMessage(query string, retrieved *models.RetrievalResult) llm.Message {
	var parts []llm.Part

	if retrieved != nil {
		texts := retrieved.Texts
		if len(texts) > maxContextChunks {
			texts = texts[:maxContextChunks]
		}
		if len(texts) > 0 {
			context := "Answer the question based only on the following context, which can include text and images.\nContext:\n" + strings.Join(texts, "\n")
			parts = append(parts, llm.TextPart(context))
		}
		for _, image := range retrieved.Images {
			parts = append(parts, llm.ImagePart(image, "image/png"))
		}
	}

	parts = append(parts, llm.TextPart("Question: "+query))
	return llm.Message{Parts: parts}
}
