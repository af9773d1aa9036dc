package service

import (
	"context"
	"fmt"
	"log"

	"deallens-backend/llm"
	"deallens-backend/models"

	"github.com/google/uuid"
)

const (
	defaultTopK          = 5
	defaultMinTextChunks = 1
	expansionFactor      = 3
)

// RetrievalService answers queries against the summary index. It searches by
// summary embedding, partitions hits by modality, and widens the search when
// the first pass yields too little textual context.
type RetrievalService struct {
	index         SummaryIndex
	embedder      llm.Embedder
	topK          int
	minTextChunks int
}

// RetrievalServiceOption is a functional option for RetrievalService
type RetrievalServiceOption func(*RetrievalService)

// RetrievalWithSummaryIndex sets the summary index
func RetrievalWithSummaryIndex(index SummaryIndex) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.index = index
	}
}

// RetrievalWithEmbedder sets the embedding client
func RetrievalWithEmbedder(embedder llm.Embedder) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.embedder = embedder
	}
}

// RetrievalWithLimits overrides the search width and the minimum-yield
// target.
func RetrievalWithLimits(topK, minTextChunks int) RetrievalServiceOption {
	return func(s *RetrievalService) {
		if topK > 0 {
			s.topK = topK
		}
		if minTextChunks > 0 {
			s.minTextChunks = minTextChunks
		}
	}
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(opts ...RetrievalServiceOption) *RetrievalService {
	s := &RetrievalService{
		topK:          defaultTopK,
		minTextChunks: defaultMinTextChunks,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve runs one retrieval pass. Text and table hits are deduplicated
// preserving first-seen order; image hits are passed through untouched. When
// fewer than minTextChunks distinct textual chunks come back, the search is
// re-run at triple width and any unseen textual hits are appended until the
// minimum is met. The minimum is best effort: an index with fewer textual
// chunks than the target yields what it has. A non-nil documentID scopes the
// search to that document's chunks. An empty index yields an empty result,
// not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, documentID *uuid.UUID) (*models.RetrievalResult, error) {
	if s.index == nil {
		return nil, fmt.Errorf("summary index not set")
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("embedder not set")
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, embedding, documentID, s.topK)
	if err != nil {
		return nil, fmt.Errorf("summary index search failed: %w", err)
	}

	result := &models.RetrievalResult{
		Texts:  []string{},
		Images: []string{},
	}
	seen := make(map[string]bool)

	for _, hit := range hits {
		// A hit with no denormalized content is skipped entirely
		if hit.Content == "" {
			continue
		}
		switch {
		case hit.Modality.IsTextual():
			if !seen[hit.Content] {
				seen[hit.Content] = true
				result.Texts = append(result.Texts, hit.Content)
			}
		case hit.Modality == models.ModalityImage:
			result.Images = append(result.Images, hit.Content)
		}
	}

	if len(result.Texts) < s.minTextChunks {
		expanded, err := s.index.Search(ctx, embedding, documentID, s.topK*expansionFactor)
		if err != nil {
			log.Printf("Warning: expanded search failed: %v. Returning first-pass results.", err)
			return result, nil
		}
		for _, hit := range expanded {
			if hit.Content == "" || !hit.Modality.IsTextual() || seen[hit.Content] {
				continue
			}
			seen[hit.Content] = true
			result.Texts = append(result.Texts, hit.Content)
			if len(result.Texts) >= s.minTextChunks {
				break
			}
		}
	}

	return result, nil
}
