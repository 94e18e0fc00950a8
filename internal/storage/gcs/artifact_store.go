// Package gcs provides an artifact store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// ArtifactStore writes artifacts to a configured GCS bucket.
type ArtifactStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ArtifactStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put uploads data and returns a gs:// URI. The upload carries a
// does-not-exist precondition so an existing object is never replaced; a
// failed precondition returns the URI with scraper.ErrArtifactExists.
func (s *ArtifactStore) Put(ctx context.Context, relPath string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("path is required")
	}
	name := relPath
	if s.prefix != "" {
		name = path.Join(s.prefix, relPath)
	}

	obj := s.client.Bucket(s.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	// Single-request upload: GCS only publishes the object once the request completes.
	writer.ChunkSize = 0
	if contentType != "" {
		writer.ContentType = contentType
	}
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, name)
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			if preconditionFailed(closeErr) {
				return uri, fmt.Errorf("%s: %w", uri, scraper.ErrArtifactExists)
			}
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		if preconditionFailed(err) {
			return uri, fmt.Errorf("%s: %w", uri, scraper.ErrArtifactExists)
		}
		return "", fmt.Errorf("close writer: %w", err)
	}
	return uri, nil
}

func preconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
