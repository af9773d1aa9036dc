package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"deallens-backend/layout"
	"deallens-backend/llm"
	"deallens-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SummaryIndex is the vector index pipelines write to and search. Entries
// are searched by summary embedding and carry the original chunk content as
// denormalized metadata.
type SummaryIndex interface {
	Add(ctx context.Context, chunk *models.Chunk, embedding []float64) error
	Search(ctx context.Context, embedding []float64, documentID *uuid.UUID, limit int) ([]models.Chunk, error)
}

// ChunkStore is the ownership-bearing id → content mapping paired with the
// summary index.
type ChunkStore interface {
	Put(id uuid.UUID, modality models.Modality, content string) error
	Persist() error
}

var (
	ErrSummarizationFailed = errors.New("failed to summarize chunks")
	ErrIndexWriteFailed    = errors.New("failed to write index entries")
)

// Max summarization calls in flight at once, to respect provider rate
// limits.
const defaultSummaryConcurrency = 3

const summarizePromptTemplate = `You are an assistant tasked with summarizing tables and text.
Give a concise summary of the table or text.

Respond only with the summary, no additional comment.
Do not start your message by saying "Here is a summary" or anything like that.
Just give the summary as it is.

Table or text chunk: %s`

const describeImagePrompt = `Describe the image in detail. For context, the image is part of a commercial real estate offering document. Be specific about graphs, such as bar plots.`

// IndexingService turns partitioned document elements into paired chunk
// store and summary index entries.
type IndexingService struct {
	index       SummaryIndex
	store       ChunkStore
	provider    llm.Provider
	embedder    llm.Embedder
	concurrency int
}

// IndexingServiceOption is a functional option for IndexingService
type IndexingServiceOption func(*IndexingService)

// IndexingWithSummaryIndex sets the summary index
func IndexingWithSummaryIndex(index SummaryIndex) IndexingServiceOption {
	return func(s *IndexingService) {
		s.index = index
	}
}

// IndexingWithChunkStore sets the chunk store
func IndexingWithChunkStore(store ChunkStore) IndexingServiceOption {
	return func(s *IndexingService) {
		s.store = store
	}
}

// IndexingWithProvider sets the summarization model provider
func IndexingWithProvider(provider llm.Provider) IndexingServiceOption {
	return func(s *IndexingService) {
		s.provider = provider
	}
}

// IndexingWithEmbedder sets the embedding client
func IndexingWithEmbedder(embedder llm.Embedder) IndexingServiceOption {
	return func(s *IndexingService) {
		s.embedder = embedder
	}
}

// NewIndexingService creates a new indexing service
func NewIndexingService(opts ...IndexingServiceOption) *IndexingService {
	s := &IndexingService{concurrency: defaultSummaryConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexDocument summarizes every element, then writes one chunk store entry
// and one summary index entry per element under a fresh shared identifier,
// in modality order (text, table, image). The chunk store snapshot is
// persisted once after the run completes. A summarization failure aborts the
// whole run before anything is written, so no half-indexed run is persisted.
// Returns the number of chunks indexed.
func (s *IndexingService) IndexDocument(ctx context.Context, documentID uuid.UUID, elements []layout.Element) (int, error) {
	if s.index == nil {
		return 0, errors.New("summary index not set")
	}
	if s.store == nil {
		return 0, errors.New("chunk store not set")
	}
	if s.provider == nil {
		return 0, errors.New("model provider not set")
	}
	if s.embedder == nil {
		return 0, errors.New("embedder not set")
	}

	var texts, tables, images []layout.Element
	for _, el := range elements {
		switch el.Kind {
		case layout.KindTable:
			tables = append(tables, el)
		case layout.KindImage:
			images = append(images, el)
		default:
			texts = append(texts, el)
		}
	}

	log.Printf("Indexing document %s: %d text, %d table, %d image chunks", documentID, len(texts), len(tables), len(images))

	textSummaries, err := s.summarizeBatch(ctx, texts, func(el layout.Element) llm.Message {
		return llm.Message{Parts: []llm.Part{
			llm.TextPart(fmt.Sprintf(summarizePromptTemplate, el.Text)),
		}}
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	// Tables are summarized from their markup rendering, not plain text
	tableSummaries, err := s.summarizeBatch(ctx, tables, func(el layout.Element) llm.Message {
		return llm.Message{Parts: []llm.Part{
			llm.TextPart(fmt.Sprintf(summarizePromptTemplate, el.TableHTML)),
		}}
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	imageSummaries, err := s.summarizeBatch(ctx, images, func(el layout.Element) llm.Message {
		return llm.Message{Parts: []llm.Part{
			llm.TextPart(describeImagePrompt),
			llm.ImagePart(el.ImageBase64, el.ImageMIME),
		}}
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	written := 0
	writePair := func(summary string, modality models.Modality, content string) error {
		id := uuid.New()

		if err := s.store.Put(id, modality, content); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", id, err)
		}

		embedding, err := s.embedder.EmbedDocument(ctx, summary)
		if err != nil {
			return fmt.Errorf("failed to embed summary for chunk %s: %w", id, err)
		}

		chunk := &models.Chunk{
			ID:         id,
			DocumentID: documentID,
			Modality:   modality,
			Content:    content,
			Summary:    summary,
		}
		if err := s.index.Add(ctx, chunk, embedding); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", id, err)
		}

		written++
		return nil
	}

	for i, el := range texts {
		if err := writePair(textSummaries[i], models.ModalityText, el.Text); err != nil {
			return written, fmt.Errorf("%w: %v", ErrIndexWriteFailed, err)
		}
	}
	for i, el := range tables {
		if err := writePair(tableSummaries[i], models.ModalityTable, el.TableHTML); err != nil {
			return written, fmt.Errorf("%w: %v", ErrIndexWriteFailed, err)
		}
	}
	for i, el := range images {
		if err := writePair(imageSummaries[i], models.ModalityImage, el.ImageBase64); err != nil {
			return written, fmt.Errorf("%w: %v", ErrIndexWriteFailed, err)
		}
	}

	if err := s.store.Persist(); err != nil {
		return written, fmt.Errorf("failed to persist chunk store: %w", err)
	}

	log.Printf("Indexed %d chunks for document %s", written, documentID)
	return written, nil
}

// summarizeBatch runs one summarization call per element with bounded
// concurrency. Any single failure fails the batch.
func (s *IndexingService) summarizeBatch(
	ctx context.Context,
	elements []layout.Element,
	buildMessage func(layout.Element) llm.Message,
) ([]string, error) {
	if len(elements) == 0 {
		return nil, nil
	}

	summaries := make([]string, len(elements))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, el := range elements {
		g.Go(func() error {
			summary, err := s.provider.Complete(gctx, buildMessage(el), nil)
			if err != nil {
				return fmt.Errorf("summarize chunk %d: %w", i, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summaries, nil
}
