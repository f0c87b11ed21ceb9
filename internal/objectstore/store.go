// Package objectstore holds originals and derivatives in named buckets.
package objectstore

import (
	"context"
	"time"
)

// Store is the object storage the service reads originals from and writes
// derivatives to. Upload overwrites an existing key.
type Store interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
	SignUpload(ctx context.Context, bucket, key string, ttl time.Duration) (*SignedUpload, error)
}

// SignedUpload lets a client upload one object without the service's
// credentials. Token is empty for stores that encode everything in the URL.
type SignedUpload struct {
	URL       string
	Token     string
	ExpiresAt time.Time
}
