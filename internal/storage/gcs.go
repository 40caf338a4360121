package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// DefaultPublicBaseURL is the host serving public GCS objects.
const DefaultPublicBaseURL = "https://storage.googleapis.com"

// GCS stores packages in a Google Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCSClient creates a Google Cloud Storage client. If credsPath is empty,
// Application Default Credentials are used.
func NewGCSClient(ctx context.Context, credsPath string) (*storage.Client, error) {
	if credsPath == "" {
		return storage.NewClient(ctx)
	}
	return storage.NewClient(ctx, option.WithCredentialsFile(credsPath))
}

// NewGCS wraps client for bucket. An empty baseURL uses DefaultPublicBaseURL.
func NewGCS(client *storage.Client, bucket, baseURL string) *GCS {
	if baseURL == "" {
		baseURL = DefaultPublicBaseURL
	}
	return &GCS{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload streams r into the bucket and returns the object's public URL.
func (g *GCS) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	wc := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := io.Copy(wc, r); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return g.PublicURL(objectPath), nil
}

// Delete removes the object behind fileURL. A missing object is reported as
// ErrNotFound.
func (g *GCS) Delete(ctx context.Context, fileURL string) error {
	objectPath, err := g.ObjectPathFromURL(fileURL)
	if err != nil {
		return err
	}
	if err := g.client.Bucket(g.bucket).Object(objectPath).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", objectPath, err)
	}
	return nil
}

// PublicURL builds the public URL for an object.
func (g *GCS) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", g.baseURL, g.bucket, objectPath)
}

// ObjectPathFromURL is the inverse of PublicURL.
func (g *GCS) ObjectPathFromURL(fileURL string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", g.baseURL, g.bucket)
	if !strings.HasPrefix(fileURL, prefix) || len(fileURL) == len(prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, fileURL)
	}
	return strings.TrimPrefix(fileURL, prefix), nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
