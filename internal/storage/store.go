package storage

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Store is the operational contract the pipeline requires from object
// storage. Implementations translate their backend's failures into the
// domain taxonomy: a missing object surfaces domain.ErrNotFound, any
// transport or backend fault surfaces domain.ErrStorageUnavailable.
// Get and Put are streaming; callers never hold a whole video in memory.
type Store interface {
	// Exists reports whether an object is present under key. A transport
	// failure is an error, distinct from a clean "not found".
	Exists(ctx context.Context, key string) (bool, error)

	// Get opens the object for streaming reads. The caller owns the
	// returned reader and must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put creates or fully overwrites the object from r. size may be -1
	// when the length is not known up front. A partially transferred
	// object never becomes visible under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited URL granting direct read access to
	// the object. Existence is not checked; callers gate on Exists.
	Presign(ctx context.Context, key string, ttl time.Duration) (*url.URL, error)
}
