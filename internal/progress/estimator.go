package progress

import (
	"time"

	"imagebank/internal/models"
)

// Estimator extrapolates time remaining for a batch from its counters.
type Estimator struct {
	// Default is the estimate in seconds reported while there is no
	// progress signal to extrapolate from.
	Default float64
}

// TimeLeft returns the estimated seconds until the batch finishes: zero for
// terminal batches, the default while uploading, a linear extrapolation of
// elapsed/progress while processing. Zero progress returns the default
// rather than dividing by it.
func (e Estimator) TimeLeft(batch *models.UploadBatch, now time.Time) float64 {
	switch batch.Status {
	case models.UploadStatusCompleted, models.UploadStatusFailed:
		return 0
	case models.UploadStatusUploading:
		return e.Default
	}

	if batch.ImagesTotal == 0 || batch.StartTime == nil {
		return e.Default
	}
	done := batch.ImagesValid + batch.ImagesRejected
	progress := float64(done) / float64(batch.ImagesTotal)
	if progress == 0 {
		return e.Default
	}
	return now.Sub(*batch.StartTime).Seconds() / progress
}
