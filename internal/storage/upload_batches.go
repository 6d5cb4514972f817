package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"imagebank/internal/models"
)

func (s *Storage) CreateUploadBatch(ctx context.Context, b *models.UploadBatch) error {
	const op = "storage.CreateUploadBatch"
	_, err := s.pool.Exec(ctx,
		`INSERT INTO upload_batches (id, user_id, status, file_size, images_valid, images_rejected, images_total, capture_time, start_time, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.UserID, b.Status, b.FileSize, b.ImagesValid, b.ImagesRejected, b.ImagesTotal,
		b.CaptureTime, b.StartTime, b.ErrorMessage)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) GetUploadBatch(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error) {
	const op = "storage.GetUploadBatch"
	var b models.UploadBatch
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, file_size, images_valid, images_rejected, images_total, capture_time, start_time, error_message
		FROM upload_batches WHERE id = $1`,
		id).Scan(&b.ID, &b.UserID, &b.Status, &b.FileSize, &b.ImagesValid, &b.ImagesRejected,
		&b.ImagesTotal, &b.CaptureTime, &b.StartTime, &b.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &b, nil
}

// UpdateUploadBatch applies a partial update. Nil patch fields are skipped.
func (s *Storage) UpdateUploadBatch(ctx context.Context, id uuid.UUID, p models.UploadBatchPatch) error {
	const op = "storage.UpdateUploadBatch"

	set := make([]string, 0, 4)
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.StartTime != nil {
		add("start_time", *p.StartTime)
	}
	if p.ImagesTotal != nil {
		add("images_total", *p.ImagesTotal)
	}
	if p.ErrorMessage != nil {
		add("error_message", *p.ErrorMessage)
	}
	if len(set) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		"UPDATE upload_batches SET "+strings.Join(set, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

// AddUploadValid bumps the accepted-image counter by one. The increment runs
// inside the database so concurrent readers never see a lost update.
func (s *Storage) AddUploadValid(ctx context.Context, id uuid.UUID) error {
	const op = "storage.AddUploadValid"
	_, err := s.pool.Exec(ctx,
		`UPDATE upload_batches SET images_valid = images_valid + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

// AddUploadRejected bumps the rejected-image counter by one.
func (s *Storage) AddUploadRejected(ctx context.Context, id uuid.UUID) error {
	const op = "storage.AddUploadRejected"
	_, err := s.pool.Exec(ctx,
		`UPDATE upload_batches SET images_rejected = images_rejected + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
