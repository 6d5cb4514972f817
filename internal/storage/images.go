package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"imagebank/internal/models"
)

func (s *Storage) CreateImage(ctx context.Context, img *models.Image) error {
	const op = "storage.CreateImage"
	_, err := s.pool.Exec(ctx,
		`INSERT INTO images (id, created_by, batch, created_at, review_status)
		VALUES ($1, $2, $3, $4, $5)`,
		img.ID, img.CreatedBy, img.Batch, img.CreatedAt, img.ReviewStatus)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Storage) CountImages(ctx context.Context) (int, error) {
	const op = "storage.CountImages"
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", op, err)
	}
	return n, nil
}

// ListImages returns a contiguous slice of the image table ordered by
// creation time. The packaging sampler picks a random offset into it.
func (s *Storage) ListImages(ctx context.Context, offset, limit int) ([]models.Image, error) {
	const op = "storage.ListImages"

	rows, err := s.pool.Query(ctx,
		`SELECT id, created_by, batch, created_at, review_status
		FROM images ORDER BY created_at, id OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.CreatedBy, &img.Batch, &img.CreatedAt, &img.ReviewStatus); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return images, nil
}

func (s *Storage) AnnotationsByImage(ctx context.Context, imageID uuid.UUID) ([]models.Annotation, error) {
	const op = "storage.AnnotationsByImage"

	rows, err := s.pool.Query(ctx,
		`SELECT id, image_id, category_id, iscrowd,
		 COALESCE(bbox_x, 0), COALESCE(bbox_y, 0), COALESCE(bbox_w, 0), COALESCE(bbox_h, 0)
		FROM annotations WHERE image_id = $1 ORDER BY id`,
		imageID)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	var anns []models.Annotation
	for rows.Next() {
		var a models.Annotation
		if err := rows.Scan(&a.ID, &a.ImageID, &a.CategoryID, &a.IsCrowd, &a.BboxX, &a.BboxY, &a.BboxW, &a.BboxH); err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		anns = append(anns, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return anns, nil
}
