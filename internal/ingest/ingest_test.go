package ingest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"image/color"
	"io"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"imagebank/internal/blob"
	"imagebank/internal/models"
)

type fakeStore struct {
	batches        map[uuid.UUID]*models.UploadBatch
	images         []models.Image
	statuses       []string
	createImageErr error
}

func newFakeStore(batch *models.UploadBatch) *fakeStore {
	return &fakeStore{batches: map[uuid.UUID]*models.UploadBatch{batch.ID: batch}}
}

func (f *fakeStore) GetUploadBatch(_ context.Context, id uuid.UUID) (*models.UploadBatch, error) {
	b, ok := f.batches[id]
	if !ok {
		return nil, errors.New("batch not found")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) UpdateUploadBatch(_ context.Context, id uuid.UUID, p models.UploadBatchPatch) error {
	b, ok := f.batches[id]
	if !ok {
		return errors.New("batch not found")
	}
	if p.Status != nil {
		b.Status = *p.Status
		f.statuses = append(f.statuses, *p.Status)
	}
	if p.StartTime != nil {
		b.StartTime = p.StartTime
	}
	if p.ImagesTotal != nil {
		b.ImagesTotal = *p.ImagesTotal
	}
	if p.ErrorMessage != nil {
		b.ErrorMessage = *p.ErrorMessage
	}
	return nil
}

func (f *fakeStore) AddUploadValid(_ context.Context, id uuid.UUID) error {
	f.batches[id].ImagesValid++
	return nil
}

func (f *fakeStore) AddUploadRejected(_ context.Context, id uuid.UUID) error {
	f.batches[id].ImagesRejected++
	return nil
}

func (f *fakeStore) CreateImage(_ context.Context, img *models.Image) error {
	if f.createImageErr != nil {
		return f.createImageErr
	}
	f.images = append(f.images, *img)
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobs) Put(_ context.Context, bucket, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeBlobs) Remove(bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeBlobs) count(bucket string) int {
	n := 0
	for key := range f.objects {
		if len(key) > len(bucket) && key[:len(bucket)+1] == bucket+"/" {
			n++
		}
	}
	return n
}

func encodedImage(t *testing.T, width, height int, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

type archiveEntry struct {
	name string
	data []byte
}

func testArchive(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.data)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write(e.data); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func testConfig() *models.Config {
	return &models.Config{ImageWidth: 640, ImageHeight: 640}
}

func testBatch() *models.UploadBatch {
	return &models.UploadBatch{
		ID:          uuid.New(),
		UserID:      7,
		Status:      models.UploadStatusUploading,
		CaptureTime: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestRunMixedArchive(t *testing.T) {
	batch := testBatch()
	store := newFakeStore(batch)
	blobs := newFakeBlobs()
	blobs.objects[blob.BucketUploads+"/"+blob.Key(batch.ID)] = testArchive(t, []archiveEntry{
		{"a.jpg", encodedImage(t, 640, 640, imaging.JPEG)},
		{"b.jpg", encodedImage(t, 640, 640, imaging.JPEG)},
		{"c.png", encodedImage(t, 640, 640, imaging.PNG)},
		{"d.JPEG", encodedImage(t, 640, 640, imaging.JPEG)},
		{"notes.txt", []byte("not an image")},
	})

	if err := New(store, blobs, testConfig()).Run(context.Background(), batch.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.batches[batch.ID]
	if got.Status != models.UploadStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, models.UploadStatusCompleted)
	}
	if got.ImagesTotal != 5 || got.ImagesValid != 4 || got.ImagesRejected != 1 {
		t.Errorf("counters = %d/%d/%d, want total=5 valid=4 rejected=1",
			got.ImagesTotal, got.ImagesValid, got.ImagesRejected)
	}
	if got.ImagesValid+got.ImagesRejected != got.ImagesTotal {
		t.Errorf("valid+rejected = %d, want %d", got.ImagesValid+got.ImagesRejected, got.ImagesTotal)
	}
	if got.StartTime == nil {
		t.Error("start_time not set")
	}

	if len(store.images) != 4 {
		t.Fatalf("image records = %d, want 4", len(store.images))
	}
	for _, img := range store.images {
		if img.ReviewStatus != models.ReviewNotReviewed {
			t.Errorf("review status = %q, want %q", img.ReviewStatus, models.ReviewNotReviewed)
		}
		if !img.CreatedAt.Equal(batch.CaptureTime) {
			t.Errorf("created_at = %v, want capture time %v", img.CreatedAt, batch.CaptureTime)
		}
		if img.Batch != batch.ID || img.CreatedBy != batch.UserID {
			t.Errorf("image %s has wrong owner/batch refs", img.ID)
		}
		stored, ok := blobs.objects[blob.BucketImages+"/"+blob.Key(img.ID)]
		if !ok {
			t.Errorf("no blob stored for image %s", img.ID)
			continue
		}
		// Every stored image is re-encoded to the canonical format.
		decoded, err := imaging.Decode(bytes.NewReader(stored))
		if err != nil {
			t.Errorf("stored blob for %s does not decode: %v", img.ID, err)
			continue
		}
		if b := decoded.Bounds(); b.Dx() != 640 || b.Dy() != 640 {
			t.Errorf("stored image is %dx%d, want 640x640", b.Dx(), b.Dy())
		}
	}
}

func TestRunStatusOrder(t *testing.T) {
	batch := testBatch()
	store := newFakeStore(batch)
	blobs := newFakeBlobs()
	blobs.objects[blob.BucketUploads+"/"+blob.Key(batch.ID)] = testArchive(t, []archiveEntry{
		{"a.jpg", encodedImage(t, 640, 640, imaging.JPEG)},
	})

	if err := New(store, blobs, testConfig()).Run(context.Background(), batch.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{models.UploadStatusProcessing, models.UploadStatusCompleted}
	if len(store.statuses) != len(want) {
		t.Fatalf("status transitions = %v, want %v", store.statuses, want)
	}
	for i := range want {
		if store.statuses[i] != want[i] {
			t.Fatalf("status transitions = %v, want %v", store.statuses, want)
		}
	}
}

func TestRunAllWrongDimensions(t *testing.T) {
	batch := testBatch()
	store := newFakeStore(batch)
	blobs := newFakeBlobs()
	blobs.objects[blob.BucketUploads+"/"+blob.Key(batch.ID)] = testArchive(t, []archiveEntry{
		{"a.jpg", encodedImage(t, 320, 240, imaging.JPEG)},
		{"b.jpg", encodedImage(t, 640, 480, imaging.JPEG)},
		{"c.jpg", encodedImage(t, 100, 100, imaging.JPEG)},
	})

	if err := New(store, blobs, testConfig()).Run(context.Background(), batch.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.batches[batch.ID]
	if got.Status != models.UploadStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, models.UploadStatusFailed)
	}
	if got.ImagesTotal != 3 || got.ImagesValid != 0 || got.ImagesRejected != 3 {
		t.Errorf("counters = %d/%d/%d, want total=3 valid=0 rejected=3",
			got.ImagesTotal, got.ImagesValid, got.ImagesRejected)
	}
	if len(store.images) != 0 {
		t.Errorf("image records = %d, want 0", len(store.images))
	}
}

func TestRunUnreadableArchive(t *testing.T) {
	batch := testBatch()
	store := newFakeStore(batch)
	blobs := newFakeBlobs()
	blobs.objects[blob.BucketUploads+"/"+blob.Key(batch.ID)] = []byte("definitely not a tarball")

	if err := New(store, blobs, testConfig()).Run(context.Background(), batch.ID); err == nil {
		t.Fatal("Run succeeded on an unreadable archive")
	}

	got := store.batches[batch.ID]
	if got.Status != models.UploadStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, models.UploadStatusFailed)
	}
	if got.ErrorMessage == "" {
		t.Error("error_message not set")
	}
}

func TestRunMissingBatch(t *testing.T) {
	store := newFakeStore(testBatch())
	if err := New(store, newFakeBlobs(), testConfig()).Run(context.Background(), uuid.New()); err == nil {
		t.Fatal("Run succeeded for a missing batch")
	}
}

func TestRunRecordInsertFailure(t *testing.T) {
	batch := testBatch()
	store := newFakeStore(batch)
	store.createImageErr = errors.New("insert failed")
	blobs := newFakeBlobs()
	blobs.objects[blob.BucketUploads+"/"+blob.Key(batch.ID)] = testArchive(t, []archiveEntry{
		{"a.jpg", encodedImage(t, 640, 640, imaging.JPEG)},
		{"b.jpg", encodedImage(t, 640, 640, imaging.JPEG)},
	})

	if err := New(store, blobs, testConfig()).Run(context.Background(), batch.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := store.batches[batch.ID]
	if got.Status != models.UploadStatusFailed {
		t.Errorf("status = %q, want %q (zero accepted images)", got.Status, models.UploadStatusFailed)
	}
	if got.ImagesRejected != 2 {
		t.Errorf("rejected = %d, want 2", got.ImagesRejected)
	}
	// The blob written before the failed insert must be compensated away.
	if n := blobs.count(blob.BucketImages); n != 0 {
		t.Errorf("image blobs left behind = %d, want 0", n)
	}
}

func TestAllowedExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPG", true},
		{"photo.jpeg", true},
		{"dir/photo.png", true},
		{"photo.webp", true},
		{"photo.tiff", true},
		{"photo.txt", false},
		{"photo.jpg.exe", false},
		{"photo", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := AllowedExtension(tt.name); got != tt.want {
			t.Errorf("AllowedExtension(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDecodeCanonical(t *testing.T) {
	good := encodedImage(t, 640, 640, imaging.PNG)
	if _, err := decodeCanonical(bytes.NewReader(good), 640, 640); err != nil {
		t.Errorf("decodeCanonical rejected a canonical image: %v", err)
	}

	small := encodedImage(t, 320, 320, imaging.PNG)
	if _, err := decodeCanonical(bytes.NewReader(small), 640, 640); err == nil {
		t.Error("decodeCanonical accepted a 320x320 image")
	}

	if _, err := decodeCanonical(bytes.NewReader([]byte("garbage")), 640, 640); err == nil {
		t.Error("decodeCanonical accepted undecodable bytes")
	}
}
