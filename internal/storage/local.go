package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/messageapi/apiserver/config"
)

// ErrInvalidKey is returned when a key would escape the storage directory.
var ErrInvalidKey = errors.New("invalid object key")

// LocalClient stores objects as flat files inside a single directory.
type LocalClient struct {
	dir string
}

// NewLocalClient constructs a directory-backed client from config.
func NewLocalClient(cfg config.LocalConfig) (*LocalClient, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("upload directory is required")
	}
	return &LocalClient{dir: filepath.Clean(cfg.Dir)}, nil
}

// EnsureBucket creates the upload directory if needed.
func (l *LocalClient) EnsureBucket(ctx context.Context) error {
	return os.MkdirAll(l.dir, 0o755)
}

// Put writes the object through a temp file and renames it into place, so a
// failed write never leaves a truncated file under the final key.
func (l *LocalClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst, err := l.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// Delete removes the stored file. Missing files are not an error.
func (l *LocalClient) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalClient) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || !filepath.IsLocal(key) || strings.HasPrefix(key, ".") {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.dir, key), nil
}
