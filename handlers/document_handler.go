package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"deallens-backend/layout"
	"deallens-backend/models"
	"deallens-backend/repository"
	"deallens-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentIndexer runs the summarize-embed-index pipeline over partitioned
// elements.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID uuid.UUID, elements []layout.Element) (int, error)
}

// DocumentHandler handles HTTP requests for document upload and lookup
type DocumentHandler struct {
	docRepo     *repository.DocumentRepository
	storage     storage.Storage
	partitioner layout.Partitioner
	indexer     DocumentIndexer
	maxFileSize int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(docRepo *repository.DocumentRepository, store storage.Storage, partitioner layout.Partitioner, indexer DocumentIndexer) *DocumentHandler {
	return &DocumentHandler{
		docRepo:     docRepo,
		storage:     store,
		partitioner: partitioner,
		indexer:     indexer,
		maxFileSize: 50 * 1024 * 1024, // 50MB, offering memorandums run large
	}
}

// UploadDocument handles POST /api/documents. The upload is partitioned and
// indexed synchronously; the response carries the document ID that scopes
// every later report and chat request.
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "File is required",
			},
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize),
			},
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" && strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		mimeType = "application/pdf"
	}
	if mimeType != "application/pdf" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_FILE_TYPE",
				"message": "Only PDF documents are supported",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_OPEN_ERROR",
				"message": err.Error(),
			},
		})
		return
	}
	defer file.Close()

	// The payload is read once and served to both the storage upload and
	// the partitioner
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_READ_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	docID := uuid.New()
	ctx := c.Request.Context()

	storagePath, err := h.storage.Upload(ctx, docID, fileHeader.Filename, bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": fmt.Sprintf("Failed to upload file: %v", err),
			},
		})
		return
	}

	doc := &models.Document{
		ID:          docID,
		Filename:    fileHeader.Filename,
		MimeType:    mimeType,
		Size:        fileHeader.Size,
		StoragePath: storagePath,
		Status:      models.DocumentStatusPending,
	}
	if err := h.docRepo.Create(ctx, doc); err != nil {
		h.storage.Delete(ctx, storagePath)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": fmt.Sprintf("Failed to save document record: %v", err),
			},
		})
		return
	}

	elements, err := h.partitioner.Partition(ctx, bytes.NewReader(data), fileHeader.Filename)
	if err != nil {
		h.markFailed(ctx, docID)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PARTITION_FAILED",
				"message": fmt.Sprintf("Failed to partition document: %v", err),
			},
		})
		return
	}

	chunkCount, err := h.indexer.IndexDocument(ctx, docID, elements)
	if err != nil {
		h.markFailed(ctx, docID)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INDEXING_FAILED",
				"message": fmt.Sprintf("Failed to index document: %v", err),
			},
		})
		return
	}

	if err := h.docRepo.UpdateStatus(ctx, docID, models.DocumentStatusIndexed, chunkCount); err != nil {
		log.Printf("Warning: failed to mark document %s indexed: %v", docID, err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":          docID,
			"filename":    doc.Filename,
			"status":      models.DocumentStatusIndexed,
			"chunk_count": chunkCount,
		},
	})
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid document ID format",
			},
		})
		return
	}

	doc, err := h.docRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Document not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    doc,
	})
}

// ListDocuments handles GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": fmt.Sprintf("Failed to list documents: %v", err),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"documents": docs,
			"total":     len(docs),
		},
	})
}

func (h *DocumentHandler) markFailed(ctx context.Context, id uuid.UUID) {
	if err := h.docRepo.UpdateStatus(ctx, id, models.DocumentStatusFailed, 0); err != nil {
		log.Printf("Warning: failed to mark document %s failed: %v", id, err)
	}
}
