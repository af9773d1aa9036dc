package store

import (
	"os"
	"path/filepath"
	"testing"

	"deallens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "summary_to_chunk.json")
}

func TestPutAndGet(t *testing.T) {
	s := NewChunkStore(tempStorePath(t))

	id := uuid.New()
	require.NoError(t, s.Put(id, models.ModalityText, "net operating income was $1.2M"))

	rec, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.ModalityText, rec.Modality)
	assert.Equal(t, "net operating income was $1.2M", rec.Content)
}

func TestGetAbsent(t *testing.T) {
	s := NewChunkStore(tempStorePath(t))

	_, ok := s.Get(uuid.New())
	assert.False(t, ok)
}

func TestPutDuplicateID(t *testing.T) {
	s := NewChunkStore(tempStorePath(t))

	id := uuid.New()
	require.NoError(t, s.Put(id, models.ModalityText, "first"))

	err := s.Put(id, models.ModalityTable, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateID)

	// Original record untouched
	rec, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "first", rec.Content)
}

func TestPersistAndLoad(t *testing.T) {
	path := tempStorePath(t)

	s := NewChunkStore(path)
	textID := uuid.New()
	imageID := uuid.New()
	require.NoError(t, s.Put(textID, models.ModalityText, "rent roll overview"))
	require.NoError(t, s.Put(imageID, models.ModalityImage, "aGVsbG8="))
	require.NoError(t, s.Persist())

	reloaded := NewChunkStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Len())

	rec, ok := reloaded.Get(imageID)
	require.True(t, ok)
	assert.Equal(t, models.ModalityImage, rec.Modality)
	assert.Equal(t, "aGVsbG8=", rec.Content)
}

func TestPersistMergesPriorRuns(t *testing.T) {
	path := tempStorePath(t)

	// First run persists one record.
	first := NewChunkStore(path)
	firstID := uuid.New()
	require.NoError(t, first.Put(firstID, models.ModalityText, "year built 1987"))
	require.NoError(t, first.Persist())

	// Second run loads the prior snapshot, adds, and overwrites the file.
	second := NewChunkStore(path)
	require.NoError(t, second.Load())
	secondID := uuid.New()
	require.NoError(t, second.Put(secondID, models.ModalityTable, "<table></table>"))
	require.NoError(t, second.Persist())

	// Both survive the overwrite.
	final := NewChunkStore(path)
	require.NoError(t, final.Load())
	assert.Equal(t, 2, final.Len())
	_, ok := final.Get(firstID)
	assert.True(t, ok)
	_, ok = final.Get(secondID)
	assert.True(t, ok)
}

func TestLoadMissingSnapshot(t *testing.T) {
	s := NewChunkStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Len())
}

func TestLoadEmptySnapshot(t *testing.T) {
	path := tempStorePath(t)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	s := NewChunkStore(path)
	require.NoError(t, s.Load())
	assert.Equal(t, 0, s.Len())
}
