package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"imagebank/internal/models"
)

func (s *Storage) CreateDownloadBatch(ctx context.Context, b *models.DownloadBatch) error {
	const op = "storage.CreateDownloadBatch"

	selections, err := json.Marshal(b.Annotations)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO download_batches (id, user_id, status, non_match_images, image_count, annotations, start_time, hash, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.UserID, b.Status, b.NonMatchImages, b.ImageCount, selections,
		b.StartTime, b.Hash, b.ErrorMessage)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) GetDownloadBatch(ctx context.Context, id uuid.UUID) (*models.DownloadBatch, error) {
	const op = "storage.GetDownloadBatch"

	var b models.DownloadBatch
	var selections []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, status, non_match_images, image_count, annotations, start_time, hash, error_message
		FROM download_batches WHERE id = $1`,
		id).Scan(&b.ID, &b.UserID, &b.Status, &b.NonMatchImages, &b.ImageCount, &selections,
		&b.StartTime, &b.Hash, &b.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	if err := json.Unmarshal(selections, &b.Annotations); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &b, nil
}

// UpdateDownloadBatch applies a partial update. Nil patch fields are skipped.
func (s *Storage) UpdateDownloadBatch(ctx context.Context, id uuid.UUID, p models.DownloadBatchPatch) error {
	const op = "storage.UpdateDownloadBatch"

	set := make([]string, 0, 3)
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.Hash != nil {
		add("hash", *p.Hash)
	}
	if p.ErrorMessage != nil {
		add("error_message", *p.ErrorMessage)
	}
	if len(set) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		"UPDATE download_batches SET "+strings.Join(set, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
