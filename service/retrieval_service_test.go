package service

import (
	"context"
	"errors"
	"testing"

	"deallens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textChunk(content string) models.Chunk {
	return models.Chunk{ID: uuid.New(), Modality: models.ModalityText, Content: content}
}

func tableChunk(content string) models.Chunk {
	return models.Chunk{ID: uuid.New(), Modality: models.ModalityTable, Content: content}
}

func imageChunk(content string) models.Chunk {
	return models.Chunk{ID: uuid.New(), Modality: models.ModalityImage, Content: content}
}

func TestRetrievePartitionsByModality(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(_ []float64, _ *uuid.UUID, _ int) ([]models.Chunk, error) {
			return []models.Chunk{
				textChunk("alpha"),
				tableChunk("<table>rent roll</table>"),
				imageChunk("aW1hZ2U="),
			}, nil
		},
	}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
	)

	result, err := svc.Retrieve(context.Background(), "what is the rent?", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "<table>rent roll</table>"}, result.Texts)
	assert.Equal(t, []string{"aW1hZ2U="}, result.Images)
}

func TestRetrieveDeduplicatesTextsKeepsImages(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(_ []float64, _ *uuid.UUID, _ int) ([]models.Chunk, error) {
			return []models.Chunk{
				textChunk("alpha"),
				textChunk("alpha"),
				imageChunk("img"),
				imageChunk("img"),
			}, nil
		},
	}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
	)

	result, err := svc.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, result.Texts)
	assert.Len(t, result.Images, 2)
}

func TestRetrieveSkipsEmptyContent(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(_ []float64, _ *uuid.UUID, _ int) ([]models.Chunk, error) {
			return []models.Chunk{
				{ID: uuid.New(), Modality: models.ModalityText, Content: ""},
				textChunk("kept"),
			}, nil
		},
	}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
	)

	result, err := svc.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, result.Texts)
}

func TestRetrieveExpandsWhenBelowMinimum(t *testing.T) {
	wide := []models.Chunk{
		imageChunk("img"),
		textChunk("first"),
		textChunk("second"),
		textChunk("third"),
	}
	index := &fakeIndex{
		searchFn: func(_ []float64, _ *uuid.UUID, limit int) ([]models.Chunk, error) {
			if limit > 5 {
				return wide, nil
			}
			// Narrow pass finds only the image
			return wide[:1], nil
		},
	}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
		RetrievalWithLimits(5, 2),
	)

	result, err := svc.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, result.Texts, "expansion stops once the minimum is met")
	assert.Equal(t, []int{5, 15}, index.searches, "second pass runs at triple width")
}

func TestRetrieveExpansionIsBestEffort(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(_ []float64, _ *uuid.UUID, _ int) ([]models.Chunk, error) {
			// The whole index holds one textual chunk, below the minimum
			return []models.Chunk{textChunk("only")}, nil
		},
	}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
		RetrievalWithLimits(5, 3),
	)

	result, err := svc.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, result.Texts)
	assert.Len(t, index.searches, 2, "exactly one expansion pass, no looping")
}

func TestRetrieveEmptyIndex(t *testing.T) {
	index := &fakeIndex{}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
	)

	result, err := svc.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Texts)
	assert.Empty(t, result.Images)
}

func TestRetrieveExpansionFailureReturnsFirstPass(t *testing.T) {
	index := &fakeIndex{
		searchFn: func(_ []float64, _ *uuid.UUID, limit int) ([]models.Chunk, error) {
			if limit > 5 {
				return nil, errors.New("index unavailable")
			}
			return []models.Chunk{imageChunk("img")}, nil
		},
	}
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(index),
		RetrievalWithEmbedder(&fakeEmbedder{vector: []float64{0.1}}),
	)

	result, err := svc.Retrieve(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Texts)
	assert.Equal(t, []string{"img"}, result.Images)
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	svc := NewRetrievalService(
		RetrievalWithSummaryIndex(&fakeIndex{}),
		RetrievalWithEmbedder(&fakeEmbedder{err: errors.New("quota exhausted")}),
	)

	_, err := svc.Retrieve(context.Background(), "q", nil)
	assert.Error(t, err)
}
