package repository

import (
	"context"
	"fmt"
	"strings"

	"deallens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const embeddingDimensions = 768

// SummaryIndexRepository is the vector index over chunk summaries. Each row
// carries the chunk id, its modality, and a denormalized copy of the
// original content so retrieval never joins back to the chunk store.
type SummaryIndexRepository struct {
	db *pgxpool.Pool
}

// NewSummaryIndexRepository creates a new summary index repository.
func NewSummaryIndexRepository(db *pgxpool.Pool) *SummaryIndexRepository {
	return &SummaryIndexRepository{db: db}
}

// formatVector formats an embedding vector as a string for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Add inserts one index entry: the summary, its embedding, and the
// denormalized chunk content under the chunk's id.
func (r *SummaryIndexRepository) Add(ctx context.Context, chunk *models.Chunk, embedding []float64) error {
	if len(embedding) != embeddingDimensions {
		return fmt.Errorf("embedding must be %d dimensions, got %d", embeddingDimensions, len(embedding))
	}

	query := `
		INSERT INTO chunk_summaries (
			id, document_id, modality, content, summary, embedding
		) VALUES ($1, $2, $3, $4, $5, $6::vector)`

	_, err := r.db.Exec(ctx, query,
		chunk.ID,
		chunk.DocumentID,
		string(chunk.Modality),
		chunk.Content,
		chunk.Summary,
		formatVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary index entry: %w", err)
	}

	return nil
}

// Search returns up to limit entries ordered by ascending cosine distance to
// the query embedding. Ties break stably on insertion order. A non-nil
// documentID scopes the search to one document's chunks; nil searches the
// whole shared index.
func (r *SummaryIndexRepository) Search(
	ctx context.Context,
	embedding []float64,
	documentID *uuid.UUID,
	limit int,
) ([]models.Chunk, error) {
	if len(embedding) != embeddingDimensions {
		return nil, fmt.Errorf("embedding must be %d dimensions, got %d", embeddingDimensions, len(embedding))
	}

	vectorStr := formatVector(embedding)

	var documentFilter string
	var args []interface{}
	if documentID == nil {
		documentFilter = "TRUE"
		args = []interface{}{vectorStr, limit}
	} else {
		documentFilter = "document_id = $2"
		args = []interface{}{vectorStr, *documentID, limit}
	}

	query := fmt.Sprintf(`
		SELECT
			id,
			document_id,
			modality,
			content,
			summary,
			embedding <=> $1::vector AS distance
		FROM chunk_summaries
		WHERE %s
		ORDER BY
			embedding <=> $1::vector,
			created_at,
			id
		LIMIT $%d`, documentFilter, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary index: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var modality string
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&modality,
			&chunk.Content,
			&chunk.Summary,
			&chunk.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary index entry: %w", err)
		}
		chunk.Modality = models.Modality(modality)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary index entries: %w", err)
	}

	return chunks, nil
}

// CountByDocument returns the number of index entries for a document.
func (r *SummaryIndexRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunk_summaries WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count summary index entries: %w", err)
	}
	return count, nil
}
