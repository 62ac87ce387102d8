package store

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned by operations on a store that has been shut down.
var ErrClosed = errors.New("store closed")

// KV is the view of keyed records available inside one transaction. Get
// reports found=false for missing keys; absence is not an error.
type KV interface {
	Get(key string) (value []byte, found bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store runs functions against an isolated transaction. Update commits every
// write made by fn when fn returns nil and discards all of them otherwise.
// Implementations serialize Update calls so read-modify-write sequences never
// interleave.
type Store interface {
	Update(ctx context.Context, fn func(kv KV) error) error
	View(ctx context.Context, fn func(kv KV) error) error
}

// Key derives the storage key of a record from a namespace tag and optional
// identifying parts, e.g. Key("user_account", addr.String()).
func Key(namespace string, parts ...string) string {
	if len(parts) == 0 {
		return namespace
	}
	return namespace + "/" + strings.Join(parts, "/")
}
