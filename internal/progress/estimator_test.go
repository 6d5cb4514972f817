package progress

import (
	"testing"
	"time"

	"imagebank/internal/models"
)

func TestTimeLeft(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Second)
	est := Estimator{Default: 120}

	tests := []struct {
		name  string
		batch models.UploadBatch
		want  float64
	}{
		{
			name:  "uploading returns default",
			batch: models.UploadBatch{Status: models.UploadStatusUploading},
			want:  120,
		},
		{
			name:  "completed returns zero",
			batch: models.UploadBatch{Status: models.UploadStatusCompleted, ImagesValid: 10, ImagesTotal: 10, StartTime: &started},
			want:  0,
		},
		{
			name:  "failed returns zero",
			batch: models.UploadBatch{Status: models.UploadStatusFailed},
			want:  0,
		},
		{
			name: "half done extrapolates linearly",
			batch: models.UploadBatch{
				Status: models.UploadStatusProcessing,
				ImagesValid: 4, ImagesRejected: 1, ImagesTotal: 10,
				StartTime: &started,
			},
			want: 20, // 10s elapsed / 0.5 progress
		},
		{
			name: "zero progress returns default instead of dividing",
			batch: models.UploadBatch{
				Status:      models.UploadStatusProcessing,
				ImagesTotal: 10,
				StartTime:   &started,
			},
			want: 120,
		},
		{
			name: "zero total returns default",
			batch: models.UploadBatch{
				Status:    models.UploadStatusProcessing,
				StartTime: &started,
			},
			want: 120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := est.TimeLeft(&tt.batch, now); got != tt.want {
				t.Errorf("TimeLeft() = %v, want %v", got, tt.want)
			}
		})
	}
}
