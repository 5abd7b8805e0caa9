package fallback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// GCSBackend relays files into a Google Cloud Storage bucket. Objects are
// keyed by basename, so a re-upload of the same file overwrites in place.
// The bucket is expected to allow public reads.
type GCSBackend struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCSBackend creates a GCS backend writing into bucket.
func NewGCSBackend(log *slog.Logger, client *storage.Client, bucket string) *GCSBackend {
	if log == nil {
		log = slog.Default()
	}
	return &GCSBackend{
		client: client,
		bucket: bucket,
		logger: log.With(slog.String("backend", "gcs")),
	}
}

// Name implements Backend.
func (b *GCSBackend) Name() string { return "gcs" }

// Upload implements Backend.
func (b *GCSBackend) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	object := filepath.Base(localPath)
	w := b.client.Bucket(b.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, file); err != nil {
		w.Close()
		return "", fmt.Errorf("write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s: %w", object, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, object), nil
}
