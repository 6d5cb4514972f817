package pack

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"imagebank/internal/blob"
	"imagebank/internal/models"
)

// Extension of every image entry inside a packaged archive. Ingestion stores
// canonical JPEG, so packaged files carry that extension.
const canonicalExt = ".jpg"

// BatchStore is the slice of the record store the pipeline needs.
type BatchStore interface {
	GetDownloadBatch(ctx context.Context, id uuid.UUID) (*models.DownloadBatch, error)
	UpdateDownloadBatch(ctx context.Context, id uuid.UUID, p models.DownloadBatchPatch) error
	CountImages(ctx context.Context) (int, error)
	ListImages(ctx context.Context, offset, limit int) ([]models.Image, error)
	AnnotationsByImage(ctx context.Context, imageID uuid.UUID) ([]models.Annotation, error)
	SuperCategoryWithChildren(ctx context.Context, id int64) (*models.LabelSuperCategory, []models.LabelCategory, error)
	CategoryWithParent(ctx context.Context, id int64) (*models.LabelCategory, string, error)
}

// BlobStore is the slice of the blob store the pipeline needs.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
}

// Pipeline packages a sampled image selection plus its manifest into one
// tar.gz archive and persists it with a content hash.
type Pipeline struct {
	store BatchStore
	blobs BlobStore
	cfg   *models.Config
}

func New(store BatchStore, blobs BlobStore, cfg *models.Config) *Pipeline {
	return &Pipeline{store: store, blobs: blobs, cfg: cfg}
}

// Run builds the archive for the batch with the given id. The error is
// returned after the batch is marked failed so the invoking loop observes it.
func (p *Pipeline) Run(ctx context.Context, batchID uuid.UUID) error {
	const op = "pack.Run"

	batch, err := p.store.GetDownloadBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}

	if err := p.build(ctx, batch); err != nil {
		p.fail(ctx, batchID, err)
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (p *Pipeline) build(ctx context.Context, batch *models.DownloadBatch) error {
	if err := p.setStatus(ctx, batch.ID, models.DownloadStatusAssemblingLabels); err != nil {
		return err
	}

	resolved, categories, err := p.resolveSelection(ctx, batch.Annotations)
	if err != nil {
		return err
	}

	if err := p.setStatus(ctx, batch.ID, models.DownloadStatusAssemblingImages); err != nil {
		return err
	}

	images, err := p.sampleImages(ctx, batch.ImageCount)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	man := newManifest(categories)
	for _, img := range images {
		data, err := p.fetchImage(ctx, img.ID)
		if err != nil {
			return err
		}
		if err := writeEntry(tw, blob.Key(img.ID)+canonicalExt, data); err != nil {
			return err
		}
		man.addImage(img, p.cfg.ImageWidth, p.cfg.ImageHeight)

		anns, err := p.store.AnnotationsByImage(ctx, img.ID)
		if err != nil {
			return err
		}
		for _, a := range anns {
			if resolved[a.CategoryID] {
				man.addAnnotation(a)
			}
		}
	}

	if err := p.setStatus(ctx, batch.ID, models.DownloadStatusAddingManifest); err != nil {
		return err
	}

	data, err := json.Marshal(man)
	if err != nil {
		return err
	}
	if err := writeEntry(tw, "manifest.json", data); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	key := blob.DownloadKey(batch.ID)
	if err := p.blobs.Put(ctx, blob.BucketDownloads, key, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return err
	}

	// Hash and READY commit together; a hash is never observable on a batch
	// that is not ready.
	sum := sha256.Sum256(buf.Bytes())
	hash := hex.EncodeToString(sum[:])
	status := models.DownloadStatusReady
	return p.store.UpdateDownloadBatch(ctx, batch.ID, models.DownloadBatchPatch{Status: &status, Hash: &hash})
}

// resolveSelection flattens the selection list into the set of category ids
// the manifest covers. Unresolvable entries are skipped, not fatal.
func (p *Pipeline) resolveSelection(ctx context.Context, selections []models.AnnotationSelection) (map[int64]bool, []manifestCategory, error) {
	resolved := make(map[int64]bool)
	categories := []manifestCategory{}

	for _, sel := range selections {
		if sel.Super {
			super, children, err := p.store.SuperCategoryWithChildren(ctx, sel.CategoryID)
			if err != nil {
				log.Printf("pack: skipping unresolvable super category %d: %v", sel.CategoryID, err)
				continue
			}
			for _, c := range children {
				if resolved[c.ID] {
					continue
				}
				resolved[c.ID] = true
				categories = append(categories, manifestCategory{SuperCategory: super.Name, ID: c.ID, Name: c.Name})
			}
			continue
		}

		cat, parent, err := p.store.CategoryWithParent(ctx, sel.CategoryID)
		if err != nil {
			log.Printf("pack: skipping unresolvable category %d: %v", sel.CategoryID, err)
			continue
		}
		if resolved[cat.ID] {
			continue
		}
		resolved[cat.ID] = true
		categories = append(categories, manifestCategory{SuperCategory: parent, ID: cat.ID, Name: cat.Name})
	}
	return resolved, categories, nil
}

// sampleImages takes a contiguous slice of the image table starting at a
// random offset. Cheaper than a full shuffle, not uniformly random.
func (p *Pipeline) sampleImages(ctx context.Context, count int) ([]models.Image, error) {
	total, err := p.store.CountImages(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errors.New("no images in the dataset")
	}
	if count > total {
		count = total
	}

	offset := 0
	if total > count {
		offset = rand.Intn(total - count + 1)
	}
	return p.store.ListImages(ctx, offset, count)
}

func (p *Pipeline) fetchImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	rc, err := p.blobs.Get(ctx, blob.BucketImages, blob.Key(id))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (p *Pipeline) setStatus(ctx context.Context, id uuid.UUID, status string) error {
	return p.store.UpdateDownloadBatch(ctx, id, models.DownloadBatchPatch{Status: &status})
}

func (p *Pipeline) fail(ctx context.Context, id uuid.UUID, cause error) {
	status := models.DownloadStatusFailed
	msg := cause.Error()
	err := p.store.UpdateDownloadBatch(ctx, id, models.DownloadBatchPatch{Status: &status, ErrorMessage: &msg})
	if err != nil {
		log.Printf("pack: could not mark batch %s failed: %v", id, err)
	}
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  time.Now().UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
