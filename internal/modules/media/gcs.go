// README: Google Cloud Storage backend reached through the Firebase app.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
)

type GCSStore struct {
	bucket *storage.BucketHandle
}

// NewGCSStore opens bucket, or the app's default bucket when bucket is empty.
func NewGCSStore(ctx context.Context, app *firebase.App, bucket string) (*GCSStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Storage: %w", err)
	}
	var h *storage.BucketHandle
	if bucket == "" {
		h, err = client.DefaultBucket()
	} else {
		h, err = client.Bucket(bucket)
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return &GCSStore{bucket: h}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

// SignedURL uses V2 signing; V4 URLs are limited to seven days.
func (s *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV2,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs sign %s: %w", key, err)
	}
	return u, nil
}
