// Package blob stores opaque byte payloads keyed by task id. Results and uploaded
// originals use separate stores so their lifetimes can differ.
package blob

import (
	"context"
	"strings"
)

// Store holds immutable blobs. Put succeeds at most once per key and returns
// models.ErrAlreadyExists afterwards; Get returns models.ErrNotFound for absent keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, `/\`) && key != "." && key != ".."
}
