package server

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imagebank/internal/blob"
	"imagebank/internal/ingest"
	"imagebank/internal/models"
)

// handleUpload accepts a tar.gz archive of images, stores it, creates the
// batch record, and hands the batch id to the ingestion topic. Ingestion
// runs after this request has already returned.
func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	fileHeader, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := strconv.ParseInt(c.PostForm("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	captureTime := time.Now().UTC()
	if raw := c.PostForm("capture_time"); raw != "" {
		captureTime, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad capture_time: %v", err)})
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	defer file.Close()

	if code, err := s.checkArchive(file, fileHeader.Size, c.PostForm("hash")); err != nil {
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	batch := &models.UploadBatch{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      models.UploadStatusUploading,
		FileSize:    fileHeader.Size,
		CaptureTime: captureTime,
	}
	if err := s.db.CreateUploadBatch(c.Request.Context(), batch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if err := s.blobs.Put(c.Request.Context(), blob.BucketUploads, blob.Key(batch.ID), file, fileHeader.Size); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	if err := s.publish(c.Request.Context(), s.uploads, batch.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	c.JSON(http.StatusOK, s.uploadBatchView(batch))
}

// handleUploadTest runs the preflight checks without creating anything.
func (s *Server) handleUploadTest(c *gin.Context) {
	fileHeader, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	if code, err := s.checkArchive(file, fileHeader.Size, c.PostForm("hash")); err != nil {
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) handleUploadStatus(c *gin.Context) {
	const op = "server.handleUploadStatus"

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	batch, err := s.db.GetUploadBatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	c.JSON(http.StatusOK, s.uploadBatchView(batch))
}

func (s *Server) uploadBatchView(batch *models.UploadBatch) gin.H {
	return gin.H{
		"id":                  batch.ID.String(),
		"status":              batch.Status,
		"file_size":           batch.FileSize,
		"images_valid":        batch.ImagesValid,
		"images_rejected":     batch.ImagesRejected,
		"images_total":        batch.ImagesTotal,
		"capture_time":        batch.CaptureTime,
		"start_time":          batch.StartTime,
		"error_message":       batch.ErrorMessage,
		"estimated_time_left": s.estimator.TimeLeft(batch, time.Now().UTC()),
	}
}

// checkArchive verifies size, content hash, and tar.gz readability before a
// batch record exists. Returns the HTTP status to answer with on failure.
func (s *Server) checkArchive(file multipart.File, size int64, wantHash string) (int, error) {
	if size > s.cfg.MaxFileSize {
		return http.StatusRequestEntityTooLarge,
			fmt.Errorf("file is too large, max size: %.1fGB", float64(s.cfg.MaxFileSize)/(1<<30))
	}

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return http.StatusInternalServerError, err
	}
	if hex.EncodeToString(h.Sum(nil)) != wantHash {
		return http.StatusBadRequest,
			fmt.Errorf("uploaded file is corrupted (hash mismatch, are you using sha256?)")
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return http.StatusInternalServerError, err
	}
	gz, err := gzip.NewReader(file)
	if err != nil {
		return http.StatusUnsupportedMediaType, fmt.Errorf("file must be of type .tar.gz")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return http.StatusUnsupportedMediaType, fmt.Errorf("file must be of type .tar.gz")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		files++
		if !ingest.AllowedExtension(hdr.Name) {
			return http.StatusBadRequest,
				fmt.Errorf("image %q is not a supported file type", hdr.Name)
		}
	}
	if files == 0 {
		return http.StatusBadRequest, fmt.Errorf("archive is empty, are the images in root?")
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return http.StatusInternalServerError, err
	}
	return 0, nil
}
