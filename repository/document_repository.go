package repository

import (
	"context"

	"deallens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for uploaded documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			id, filename, mime_type, size, storage_path, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		doc.ID,
		doc.Filename,
		doc.MimeType,
		doc.Size,
		doc.StoragePath,
		string(doc.Status),
	).Scan(&doc.CreatedAt)
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	var status string
	query := `
		SELECT id, filename, mime_type, size, storage_path, status, chunk_count, created_at
		FROM documents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.Filename,
		&doc.MimeType,
		&doc.Size,
		&doc.StoragePath,
		&status,
		&doc.ChunkCount,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)

	return doc, nil
}

// List retrieves all documents, newest first
func (r *DocumentRepository) List(ctx context.Context) ([]*models.Document, error) {
	query := `
		SELECT id, filename, mime_type, size, storage_path, status, chunk_count, created_at
		FROM documents
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		var status string
		err := rows.Scan(
			&doc.ID,
			&doc.Filename,
			&doc.MimeType,
			&doc.Size,
			&doc.StoragePath,
			&status,
			&doc.ChunkCount,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		doc.Status = models.DocumentStatus(status)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// UpdateStatus sets the indexing status and chunk count for a document
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DocumentStatus, chunkCount int) error {
	query := `
		UPDATE documents
		SET status = $2, chunk_count = $3
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, string(status), chunkCount)
	return err
}
