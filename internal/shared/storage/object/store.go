package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving, retrieving, and releasing
// uploaded document blobs. Implementations must support concurrent writes to
// distinct keys.
type ObjectStore interface {
	Save(ctx context.Context, ownerID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
}
