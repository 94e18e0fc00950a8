// Package local implements an artifact store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

// ErrExists is returned, with the existing path, when an artifact is already
// present at the target path.
var ErrExists = scraper.ErrArtifactExists

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the output root; raw/ and clean/ live beneath it.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ArtifactStore writes artifacts under a base directory, one file per artifact.
type ArtifactStore struct {
	baseDir string
}

// New creates a filesystem-backed artifact store.
func New(cfg Config) (*ArtifactStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ArtifactStore{baseDir: cfg.BaseDir}, nil
}

// Put writes data to a temp file beside the target, syncs it and then links it
// into place. The target is never overwritten and never visible half-written;
// when it already exists its path is returned with ErrExists.
func (s *ArtifactStore) Put(ctx context.Context, relPath string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", relPath, err)
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(relPath))
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if _, err := os.Lstat(fullPath); err == nil {
		return fullPath, fmt.Errorf("%s: %w", fullPath, ErrExists)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmpName, err := writeTemp(dir, data)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmpName) }()

	if err := os.Link(tmpName, fullPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fullPath, fmt.Errorf("%s: %w", fullPath, ErrExists)
		}
		// Filesystems without hard links fall back to a rename after the
		// existence check above.
		if renameErr := os.Rename(tmpName, fullPath); renameErr != nil {
			return "", fmt.Errorf("failed to move artifact into place: %w", renameErr)
		}
	}
	return fullPath, nil
}

func writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	fail := func(step string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to %s temp file: %w", step, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, nil
}
