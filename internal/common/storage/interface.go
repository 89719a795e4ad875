package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a key does not exist in its bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the blob API the source archive needs. Objects are small,
// so they move as whole byte slices.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	// GetObject returns ErrObjectNotFound for a missing key and refuses
	// objects larger than limit bytes.
	GetObject(ctx context.Context, bucket, key string, limit int64) ([]byte, error)
	// RemoveObject succeeds for a missing key.
	RemoveObject(ctx context.Context, bucket, key string) error
}
