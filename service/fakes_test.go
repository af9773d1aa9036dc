package service

import (
	"context"
	"sync"

	"deallens-backend/llm"
	"deallens-backend/models"

	"github.com/google/uuid"
)

// fakeIndex records Add calls and serves Search from a configurable hook.
type fakeIndex struct {
	mu       sync.Mutex
	added    []models.Chunk
	searchFn func(embedding []float64, documentID *uuid.UUID, limit int) ([]models.Chunk, error)
	searches []int // limits passed to Search, in call order
}

func (f *fakeIndex) Add(ctx context.Context, chunk *models.Chunk, embedding []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, *chunk)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, embedding []float64, documentID *uuid.UUID, limit int) ([]models.Chunk, error) {
	f.mu.Lock()
	f.searches = append(f.searches, limit)
	f.mu.Unlock()
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(embedding, documentID, limit)
}

// fakeStore is an in-memory ChunkStore that counts Persist calls.
type fakeStore struct {
	mu       sync.Mutex
	records  map[uuid.UUID]models.Chunk
	persists int
	putErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[uuid.UUID]models.Chunk{}}
}

func (f *fakeStore) Put(id uuid.UUID, modality models.Modality, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.records[id] = models.Chunk{ID: id, Modality: modality, Content: content}
	return nil
}

func (f *fakeStore) Persist() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persists++
	return nil
}

// fakeProvider answers Complete from a hook, tracking call count.
type fakeProvider struct {
	mu         sync.Mutex
	calls      int
	completeFn func(call int, msg llm.Message, schema *llm.Schema) (string, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, msg llm.Message, schema *llm.Schema) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.completeFn == nil {
		return "ok", nil
	}
	return f.completeFn(call, msg, schema)
}

// fakeEmbedder returns a fixed vector for every input.
type fakeEmbedder struct {
	vector []float64
	err    error
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedDocument(ctx context.Context, text string) ([]float64, error) {
	return f.vector, f.err
}

// fakeRetriever serves canned results per query.
type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string) (*models.RetrievalResult, error)
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, documentID *uuid.UUID) (*models.RetrievalResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.fn == nil {
		return &models.RetrievalResult{Texts: []string{}, Images: []string{}}, nil
	}
	return f.fn(query)
}

// fakeSynthesizer answers per query.
type fakeSynthesizer struct {
	fn func(query string, retrieved *models.RetrievalResult, schema *llm.Schema) (string, error)
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, query string, retrieved *models.RetrievalResult, schema *llm.Schema) (string, error) {
	if f.fn == nil {
		return "{}", nil
	}
	return f.fn(query, retrieved, schema)
}

// fakeDocs resolves any identifier in its set.
type fakeDocs struct {
	known map[uuid.UUID]bool
}

func (f *fakeDocs) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	if f.known[id] {
		return &models.Document{ID: id}, nil
	}
	return nil, ErrDocumentNotFound
}
