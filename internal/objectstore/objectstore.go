// Package objectstore persists raw uploaded blobs. Blob keys are
// opaque to callers; the document layer stores them encrypted.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("blob not found")

// Store is the blob backend. Keys are tenant-prefixed paths.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// BlobKey builds the canonical storage key for a document blob. Keys
// are opaque and tenant-prefixed; nothing user-controlled appears in
// them.
func BlobKey(tenantID, documentID string) string {
	return fmt.Sprintf("documents/%s/%s", tenantID, documentID)
}
