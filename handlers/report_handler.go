package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"deallens-backend/models"
	"deallens-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportBuilder returns the structured report for a document, building it on
// first request.
type ReportBuilder interface {
	GetReport(ctx context.Context, documentID uuid.UUID) (*models.Report, error)
}

// ReportHandler handles HTTP requests for structured reports
type ReportHandler struct {
	reports ReportBuilder
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportBuilder) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// GetReport handles GET /api/reports/:id. The first request for a document
// builds the report section by section, so it can take a while; subsequent
// requests serve the cached result.
func (h *ReportHandler) GetReport(c *gin.Context) {
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

	report, err := h.reports.GetReport(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Document not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "REPORT_FAILED",
				"message": fmt.Sprintf("Failed to build report: %v", err),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
