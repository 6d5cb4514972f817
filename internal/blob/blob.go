package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v6"
)

// Bucket names. Image objects are keyed by image id, archives by batch id.
const (
	BucketImages    = "images"
	BucketUploads   = "upload-archives"
	BucketDownloads = "download-archives"
)

// Key renders an id the way objects are named in every bucket.
func Key(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

// DownloadKey names a finished download archive.
func DownloadKey(id uuid.UUID) string {
	return Key(id) + ".tar.gz"
}

// Store is a MinIO-backed blob store.
type Store struct {
	client *minio.Client
}

func New(endpoint, accessKey, secretKey string, useSSL bool) (*Store, error) {
	const op = "blob.New"

	client, err := minio.New(endpoint, accessKey, secretKey, useSSL)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return &Store{client: client}, nil
}

// EnsureBuckets creates the three buckets if they do not exist yet.
func (s *Store) EnsureBuckets() error {
	const op = "blob.EnsureBuckets"

	for _, bucket := range []string{BucketImages, BucketUploads, BucketDownloads} {
		exists, err := s.client.BucketExists(bucket)
		if err != nil {
			return fmt.Errorf("%s: %v", op, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(bucket, ""); err != nil {
			return fmt.Errorf("%s: %v", op, err)
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	const op = "blob.Put"
	_, err := s.client.PutObjectWithContext(ctx, bucket, key, r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	const op = "blob.Get"
	obj, err := s.client.GetObjectWithContext(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	return obj, nil
}

func (s *Store) Remove(bucket, key string) error {
	const op = "blob.Remove"
	if err := s.client.RemoveObject(bucket, key); err != nil {
		return fmt.Errorf("%s: %v", op, err)
	}
	return nil
}
