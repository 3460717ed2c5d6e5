// Package gcs implements media storage on Google Cloud Storage. Rendered
// node illustrations are uploaded here and served through their public URLs.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
)

// Config holds the settings for the GCS-backed media store.
type Config struct {
	// Bucket is the name of the GCS bucket holding rendered media.
	Bucket string

	// PublicBaseURL overrides the URL prefix for stored objects. When empty,
	// the canonical storage.googleapis.com form is used.
	PublicBaseURL string
}

// MediaStore uploads rendered images to a GCS bucket and exposes their
// public URLs. It also doubles as the storage health probe gating bulk
// admin operations.
type MediaStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewMediaStore creates a media store bound to the configured bucket.
// The storage client picks up application default credentials.
func NewMediaStore(ctx context.Context, cfg Config, logger *slog.Logger) (*MediaStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name cannot be empty")
	}

	if logger == nil {
		logger = slog.Default()
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &MediaStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: cfg.PublicBaseURL,
		logger:  logger.With(slog.String("component", "media_store")),
	}, nil
}

// Upload writes data to the bucket under key and returns the public URL.
func (s *MediaStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}

	url := s.PublicURL(key)
	s.logger.Debug("uploaded media object",
		slog.String("key", key),
		slog.Int("size_bytes", len(data)))
	return url, nil
}

// PublicURL returns the public URL for an object key without touching the
// network.
func (s *MediaStore) PublicURL(key string) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// Check verifies the bucket is reachable and writable by writing a small
// probe object and reading it back. Bulk admin operations call this before
// touching the task queue so they never mass-enqueue work that every worker
// would fail.
func (s *MediaStore) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	probe := []byte(fmt.Sprintf("ok %d", time.Now().UTC().UnixNano()))
	obj := s.client.Bucket(s.bucket).Object(".healthcheck")

	w := obj.NewWriter(ctx)
	w.ContentType = "text/plain"
	if _, err := w.Write(probe); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage probe write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage probe write failed: %w", err)
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return fmt.Errorf("storage probe read failed: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			s.logger.Warn("failed to close probe reader", slog.String("error", err.Error()))
		}
	}()

	got, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage probe read failed: %w", err)
	}
	if !bytes.Equal(got, probe) {
		return fmt.Errorf("storage probe mismatch: wrote %d bytes, read %d", len(probe), len(got))
	}

	return nil
}

// Close releases the underlying storage client.
func (s *MediaStore) Close() error {
	return s.client.Close()
}
