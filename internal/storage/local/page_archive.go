// Package local archives fetched pages on the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the filesystem page archive.
type Config struct {
	// Dir is the root directory where pages will be written.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// PageArchive writes raw page bodies under a base directory.
type PageArchive struct {
	baseDir string
}

// New creates the archive, creating Dir if needed and checking it is writable.
func New(cfg Config) (*PageArchive, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("archive directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat archive directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive path is not a directory")
	}

	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &PageArchive{baseDir: cfg.Dir}, nil
}

// Archive writes body to name relative to the base directory and returns a
// file:// URI.
func (a *PageArchive) Archive(ctx context.Context, name string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("archive name is required")
	}

	fullPath := filepath.Join(a.baseDir, name)
	cleanBase := filepath.Clean(a.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write page: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}
