package filestore

import (
	"context"
	"time"
)

// Store is the uniform file abstraction every component writes through.
// Keys are slash-separated paths relative to the store root; the same key
// space works for the local tree and for object storage.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, key string) error
	RemoveAll(ctx context.Context, prefix string) error
	ModTime(ctx context.Context, key string) (time.Time, error)
}

// WriteJSONIndent-style helpers live with the callers; the store stays byte
// oriented so local and remote backends behave identically.
