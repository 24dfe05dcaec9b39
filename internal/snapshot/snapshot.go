// Package snapshot stores the application state as a single blob under a
// fixed key, the way the browser build kept it in local storage.
package snapshot

import (
	"context"
	"errors"
)

// DefaultKey is the key the state blob is stored under.
const DefaultKey = "app_demo_data"

// ErrNotFound is returned by Load when no blob exists for the key.
var ErrNotFound = errors.New("snapshot: not found")

// Backend reads and writes whole state blobs. Writes always replace the
// previous blob; there are no partial updates.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}
