package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"deallens-backend/models"

	"github.com/google/uuid"
)

// ErrDuplicateID is returned when a chunk identifier is written twice.
// Identifiers are assigned fresh at indexing time and never reused.
var ErrDuplicateID = errors.New("chunk id already exists")

// Record is the stored form of a chunk: its modality tag and original
// content. It is everything needed to reconstruct the chunk for answering.
type Record struct {
	Modality models.Modality `json:"modality"`
	Content  string          `json:"content"`
}

// ChunkStore is the ownership-bearing id → content mapping behind the summary
// index. It is append-only: no update, no delete. The whole map is persisted
// as a single JSON snapshot; Load reads the prior snapshot into memory so a
// later Persist overwrites the file with the merged state rather than
// dropping earlier runs.
type ChunkStore struct {
	mu      sync.RWMutex
	path    string
	records map[uuid.UUID]Record
}

// NewChunkStore creates a chunk store that snapshots to the given file path.
func NewChunkStore(path string) *ChunkStore {
	return &ChunkStore{
		path:    path,
		records: make(map[uuid.UUID]Record),
	}
}

// Load reads the persisted snapshot into memory. A missing snapshot file is
// not an error; the store starts empty.
func (s *ChunkStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read chunk store snapshot: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	records := make(map[uuid.UUID]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode chunk store snapshot: %w", err)
	}

	for id, rec := range records {
		s.records[id] = rec
	}

	return nil
}

// Put stores a record under an id. Writing an existing id is a corruption
// state and is rejected.
func (s *ChunkStore) Put(id uuid.UUID, modality models.Modality, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	s.records[id] = Record{Modality: modality, Content: content}
	return nil
}

// Get returns the record for an id, or ok=false when absent.
func (s *ChunkStore) Get(id uuid.UUID) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Persist writes the full in-memory mapping as one snapshot file. The write
// goes through a temp file and rename so a crash mid-write leaves the prior
// snapshot intact.
func (s *ChunkStore) Persist() error {
	s.mu.RLock()
	data, err := json.Marshal(s.records)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode chunk store snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chunkstore-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}
