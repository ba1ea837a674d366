package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("image not found")

// ImageStore holds rendered credential artifacts keyed by a relative path.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
