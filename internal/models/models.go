package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload batch statuses, in order. A batch only ever moves forward.
const (
	UploadStatusUploading  = "uploading"
	UploadStatusProcessing = "processing"
	UploadStatusCompleted  = "completed"
	UploadStatusFailed     = "failed"
)

// Download batch statuses, in order.
const (
	DownloadStatusStarting         = "starting"
	DownloadStatusAssemblingLabels = "assembling_labels"
	DownloadStatusAssemblingImages = "assembling_images"
	DownloadStatusAddingManifest   = "adding_manifest"
	DownloadStatusReady            = "ready"
	DownloadStatusFailed           = "failed"
)

// Image review statuses.
const (
	ReviewNotReviewed    = "not_reviewed"
	ReviewAwaitingLabels = "awaiting_labels"
	ReviewApproved       = "approved"
)

// UploadBatch is one uploaded archive and the live state of its ingestion.
// Created by the upload endpoint; mutated only by the ingestion pipeline
// afterwards.
type UploadBatch struct {
	ID             uuid.UUID  `db:"id"`
	UserID         int64      `db:"user_id"`
	Status         string     `db:"status"`
	FileSize       int64      `db:"file_size"`
	ImagesValid    int        `db:"images_valid"`
	ImagesRejected int        `db:"images_rejected"`
	ImagesTotal    int        `db:"images_total"`
	CaptureTime    time.Time  `db:"capture_time"`
	StartTime      *time.Time `db:"start_time"`
	ErrorMessage   string     `db:"error_message"`
}

// Image is one accepted archive entry. Rejected entries never get a record.
type Image struct {
	ID           uuid.UUID `db:"id"`
	CreatedBy    int64     `db:"created_by"`
	Batch        uuid.UUID `db:"batch"`
	CreatedAt    time.Time `db:"created_at"`
	ReviewStatus string    `db:"review_status"`
}

// Annotation is one labelled region on an image.
type Annotation struct {
	ID         int64     `db:"id"`
	ImageID    uuid.UUID `db:"image_id"`
	CategoryID int64     `db:"category_id"`
	IsCrowd    bool      `db:"iscrowd"`
	BboxX      int       `db:"bbox_x"`
	BboxY      int       `db:"bbox_y"`
	BboxW      int       `db:"bbox_w"`
	BboxH      int       `db:"bbox_h"`
}

// LabelCategory is a leaf of the two-level label taxonomy.
type LabelCategory struct {
	ID              int64  `db:"id"`
	Name            string `db:"name"`
	SuperCategoryID *int64 `db:"super_category_id"`
}

// LabelSuperCategory groups categories.
type LabelSuperCategory struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// AnnotationSelection is one entry of a download request's selection list.
// A super selection expands to every child category of the super category.
type AnnotationSelection struct {
	CategoryID int64 `json:"id"`
	Super      bool  `json:"super"`
}

// DownloadBatch is one packaging request and its state. Hash stays empty
// until the archive is persisted and the batch turns ready.
type DownloadBatch struct {
	ID             uuid.UUID             `db:"id"`
	UserID         int64                 `db:"user_id"`
	Status         string                `db:"status"`
	NonMatchImages bool                  `db:"non_match_images"`
	ImageCount     int                   `db:"image_count"`
	Annotations    []AnnotationSelection `db:"annotations"`
	StartTime      time.Time             `db:"start_time"`
	Hash           string                `db:"hash"`
	ErrorMessage   string                `db:"error_message"`
}

// UploadBatchPatch is a partial update of an upload batch. Nil fields are
// left untouched. Every applied patch is committed immediately.
type UploadBatchPatch struct {
	Status       *string
	StartTime    *time.Time
	ImagesTotal  *int
	ErrorMessage *string
}

// DownloadBatchPatch is a partial update of a download batch.
type DownloadBatchPatch struct {
	Status       *string
	Hash         *string
	ErrorMessage *string
}
