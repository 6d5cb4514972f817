package ingest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"imagebank/internal/blob"
	"imagebank/internal/models"
)

// BatchStore is the slice of the record store the pipeline needs.
type BatchStore interface {
	GetUploadBatch(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error)
	UpdateUploadBatch(ctx context.Context, id uuid.UUID, p models.UploadBatchPatch) error
	AddUploadValid(ctx context.Context, id uuid.UUID) error
	AddUploadRejected(ctx context.Context, id uuid.UUID) error
	CreateImage(ctx context.Context, img *models.Image) error
}

// BlobStore is the slice of the blob store the pipeline needs.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	Remove(bucket, key string) error
}

// Pipeline turns one uploaded archive into individually stored canonical
// images. Entry failures are counted as rejections; anything outside the
// entry loop fails the whole batch.
type Pipeline struct {
	store BatchStore
	blobs BlobStore
	cfg   *models.Config
}

func New(store BatchStore, blobs BlobStore, cfg *models.Config) *Pipeline {
	return &Pipeline{store: store, blobs: blobs, cfg: cfg}
}

// Run processes the batch with the given id. The batch record and the raw
// archive blob must already exist.
func (p *Pipeline) Run(ctx context.Context, batchID uuid.UUID) error {
	const op = "ingest.Run"

	batch, err := p.store.GetUploadBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	now := time.Now().UTC()
	status := models.UploadStatusProcessing
	err = p.store.UpdateUploadBatch(ctx, batchID, models.UploadBatchPatch{Status: &status, StartTime: &now})
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := p.processArchive(ctx, batch); err != nil {
		p.fail(ctx, batchID, err)
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (p *Pipeline) processArchive(ctx context.Context, batch *models.UploadBatch) error {
	// First pass: the total is fixed before any entry is processed and is
	// never revised afterwards.
	a, err := p.openArchive(ctx, batch.ID)
	if err != nil {
		return err
	}
	total := 0
	for {
		hdr, err := a.tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.Close()
			return err
		}
		if hdr.Typeflag == tar.TypeReg {
			total++
		}
	}
	a.Close()

	err = p.store.UpdateUploadBatch(ctx, batch.ID, models.UploadBatchPatch{ImagesTotal: &total})
	if err != nil {
		return err
	}

	// Second pass: handle each regular file with per-entry isolation.
	a, err = p.openArchive(ctx, batch.ID)
	if err != nil {
		return err
	}
	defer a.Close()

	valid := 0
	for {
		hdr, err := a.tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		if err := p.processEntry(ctx, batch, hdr.Name, a.tr); err != nil {
			log.Printf("ingest: batch %s: rejected %q: %v", batch.ID, hdr.Name, err)
			if err := p.store.AddUploadRejected(ctx, batch.ID); err != nil {
				return err
			}
			continue
		}
		if err := p.store.AddUploadValid(ctx, batch.ID); err != nil {
			return err
		}
		valid++
	}

	// A batch with zero accepted images is a failure even without an error.
	if valid == 0 {
		status := models.UploadStatusFailed
		return p.store.UpdateUploadBatch(ctx, batch.ID, models.UploadBatchPatch{Status: &status})
	}
	status := models.UploadStatusCompleted
	return p.store.UpdateUploadBatch(ctx, batch.ID, models.UploadBatchPatch{Status: &status})
}

// processEntry validates, converts, and stores one archive entry. Any error
// counts as a rejection of this entry only.
func (p *Pipeline) processEntry(ctx context.Context, batch *models.UploadBatch, name string, r io.Reader) error {
	if !AllowedExtension(name) {
		return fmt.Errorf("extension of %q is not allowed", name)
	}

	img, err := decodeCanonical(r, p.cfg.ImageWidth, p.cfg.ImageHeight)
	if err != nil {
		return err
	}

	// Re-encode into the canonical format regardless of the source format.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return err
	}

	// Blob first, record second; a failed insert compensates with a delete
	// so no Image record can point at a missing blob.
	id := uuid.New()
	key := blob.Key(id)
	if err := p.blobs.Put(ctx, blob.BucketImages, key, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return err
	}

	rec := &models.Image{
		ID:           id,
		CreatedBy:    batch.UserID,
		Batch:        batch.ID,
		CreatedAt:    batch.CaptureTime,
		ReviewStatus: models.ReviewNotReviewed,
	}
	if err := p.store.CreateImage(ctx, rec); err != nil {
		if rmErr := p.blobs.Remove(blob.BucketImages, key); rmErr != nil {
			log.Printf("ingest: batch %s: orphan blob %s left behind: %v", batch.ID, key, rmErr)
		}
		return err
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, id uuid.UUID, cause error) {
	status := models.UploadStatusFailed
	msg := cause.Error()
	err := p.store.UpdateUploadBatch(ctx, id, models.UploadBatchPatch{Status: &status, ErrorMessage: &msg})
	if err != nil {
		log.Printf("ingest: could not mark batch %s failed: %v", id, err)
	}
}

type archive struct {
	rc io.ReadCloser
	gz *gzip.Reader
	tr *tar.Reader
}

func (p *Pipeline) openArchive(ctx context.Context, batchID uuid.UUID) (*archive, error) {
	rc, err := p.blobs.Get(ctx, blob.BucketUploads, blob.Key(batchID))
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &archive{rc: rc, gz: gz, tr: tar.NewReader(gz)}, nil
}

func (a *archive) Close() error {
	a.gz.Close()
	return a.rc.Close()
}
