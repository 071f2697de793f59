// Package attachments stores files uploaded with a message and hands back the
// reference that is saved on the message row.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

const defaultContentType = "application/octet-stream"

var (
	// ErrInvalidFilename is returned when an upload name has nothing usable
	// left after sanitizing.
	ErrInvalidFilename = errors.New("invalid attachment filename")

	// ErrInvalidReference is returned by Remove for references this handler
	// did not produce.
	ErrInvalidReference = errors.New("invalid attachment reference")

	// ErrStorage wraps failures of the underlying storage backend.
	ErrStorage = errors.New("attachment storage failed")
)

// Backend is the subset of storage.Storage the handler needs.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Handler writes attachments to a storage backend.
type Handler struct {
	backend Backend
	prefix  string
	newID   func() string
}

// NewHandler returns a Handler that prefixes every reference with prefix
// (e.g. "uploads").
func NewHandler(backend Backend, prefix string) *Handler {
	return &Handler{
		backend: backend,
		prefix:  strings.Trim(strings.TrimSpace(prefix), "/"),
		newID:   uuid.NewString,
	}
}

// Store sanitizes filename, writes the payload under a collision-free key and
// returns the attachment reference, "<prefix>/<uuid>_<sanitized name>".
func (h *Handler) Store(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(contentType) == "" {
		contentType = defaultContentType
	}

	key := h.newID() + "_" + name
	if err := h.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return h.reference(key), nil
}

// Remove deletes the attachment behind ref.
func (h *Handler) Remove(ctx context.Context, ref string) error {
	key, err := h.key(ref)
	if err != nil {
		return err
	}
	if err := h.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (h *Handler) reference(key string) string {
	if h.prefix == "" {
		return key
	}
	return path.Join(h.prefix, key)
}

func (h *Handler) key(ref string) (string, error) {
	key := ref
	if h.prefix != "" {
		var ok bool
		key, ok = strings.CutPrefix(ref, h.prefix+"/")
		if !ok {
			return "", ErrInvalidReference
		}
	}
	if key == "" || strings.Contains(key, "/") {
		return "", ErrInvalidReference
	}
	return key, nil
}
