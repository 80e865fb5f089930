package photos

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// ObjectStore persists photo bytes.
type ObjectStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	Delete(ctx context.Context, name string) error
	URL(name string) string
}

// GCSStore keeps photos in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore binds the store to a bucket.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

// Put uploads data under name.
func (s *GCSStore) Put(ctx context.Context, name, contentType string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("photos: upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("photos: upload %s: %w", name, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("photos: delete %s: %w", name, err)
	}
	return nil
}

// URL returns the public URL of the object.
func (s *GCSStore) URL(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, name)
}
