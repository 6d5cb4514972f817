package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imagebank/internal/blob"
	"imagebank/internal/models"
)

type downloadRequest struct {
	UserID         int64                        `json:"user_id"`
	Annotations    []models.AnnotationSelection `json:"annotations"`
	Count          int                          `json:"count"`
	NonMatchImages *bool                        `json:"non_match_images"`
}

// handleDownloadRequest creates a download batch and hands its id to the
// packaging topic. Packaging runs after this request has already returned.
func (s *Server) handleDownloadRequest(c *gin.Context) {
	const op = "server.handleDownloadRequest"

	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Count < 1 || req.Count > s.cfg.MaxDownloadCount {
		c.JSON(http.StatusBadRequest,
			gin.H{"error": fmt.Sprintf("count must be between 1 and %d", s.cfg.MaxDownloadCount)})
		return
	}

	nonMatch := true
	if req.NonMatchImages != nil {
		nonMatch = *req.NonMatchImages
	}
	batch := &models.DownloadBatch{
		ID:             uuid.New(),
		UserID:         req.UserID,
		Status:         models.DownloadStatusStarting,
		NonMatchImages: nonMatch,
		ImageCount:     req.Count,
		Annotations:    req.Annotations,
		StartTime:      time.Now().UTC(),
	}
	if err := s.db.CreateDownloadBatch(c.Request.Context(), batch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	if err := s.publish(c.Request.Context(), s.downloads, batch.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.JSON(http.StatusOK, downloadBatchView(batch))
}

func (s *Server) handleDownloadStatus(c *gin.Context) {
	const op = "server.handleDownloadStatus"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	batch, err := s.db.GetDownloadBatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, downloadBatchView(batch))
}

// handleDownloadFetch streams a finished archive back to the caller.
func (s *Server) handleDownloadFetch(c *gin.Context) {
	const op = "server.handleDownloadFetch"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	batch, err := s.db.GetDownloadBatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	if batch.Status != models.DownloadStatusReady {
		c.JSON(http.StatusBadRequest, gin.H{"error": "batch is not ready to download"})
		return
	}

	rc, err := s.blobs.Get(c.Request.Context(), blob.BucketDownloads, blob.DownloadKey(batch.ID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=images.tar.gz")
	c.Data(http.StatusOK, "application/gzip", data)
}

func downloadBatchView(batch *models.DownloadBatch) gin.H {
	return gin.H{
		"id":               batch.ID.String(),
		"status":           batch.Status,
		"non_match_images": batch.NonMatchImages,
		"image_count":      batch.ImageCount,
		"annotations":      batch.Annotations,
		"start_time":       batch.StartTime,
		"hash":             batch.Hash,
		"error_message":    batch.ErrorMessage,
	}
}
