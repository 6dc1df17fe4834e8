package objectstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_object_store.go -package=mocks meetscribe/internal/objectstore ObjectStore

import (
	"context"
	"io"
)

// ObjectStore defines the interface for recording payload storage. Paths are
// always relative ("recordings/{userID}/{file}") so the public base URL can
// change without invalidating stored data. Objects are write-once per
// session; there is no concurrent-writer case to handle.
type ObjectStore interface {
	// Put writes the object at the given relative path and returns the byte
	// count written.
	Put(ctx context.Context, relPath string, r io.Reader) (int64, error)

	// Open opens the object for reading.
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)

	// Exists reports whether an object is present at the path.
	Exists(ctx context.Context, relPath string) (bool, error)

	// Delete removes the object. Deleting an absent object is not an error.
	Delete(ctx context.Context, relPath string) error
}
