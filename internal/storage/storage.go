package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("object not found")

type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Storage holds uploaded files under flat keys.
type Storage interface {
	// Save writes content under key and returns the location recorded
	// alongside the submission.
	Save(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Object, error)
}
