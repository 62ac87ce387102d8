package index

import (
	"fmt"

	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// Mode selects how wallets are mapped to identity ids.
type Mode string

const (
	// ModeNone answers lookups from the account records themselves.
	ModeNone Mode = "none"
	// ModeMap keeps one unbounded map entry per wallet.
	ModeMap Mode = "map"
	// ModeSharded keeps fixed-capacity shards of entries.
	ModeSharded Mode = "sharded"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeMap, ModeSharded:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Index maintains the wallet to identity mapping. Every method runs inside the
// caller's store transaction.
type Index interface {
	Mode() Mode
	// InitialShardCount is the shard count recorded in a new registry.
	InitialShardCount() uint16
	// Place picks the shard for a new identity whose primary is w. It may
	// grow reg.ShardCount.
	Place(reg *identity.Registry, w wallet.Address) (uint16, error)
	Put(kv store.KV, shardID uint16, w wallet.Address, userID uint64) error
	Remove(kv store.KV, shardID uint16, w wallet.Address) error
	Lookup(kv store.KV, shardID uint16, w wallet.Address) (uint64, bool, error)
}

// ShardReader is implemented by indexes that persist shards.
type ShardReader interface {
	Shard(kv store.KV, shardID uint16) (Shard, bool, error)
}

// New builds the index for mode. Routing and shardCount only apply to the
// sharded mode.
func New(mode Mode, routing Routing, shardCount uint16) (Index, error) {
	switch mode {
	case ModeNone:
		return noneIndex{}, nil
	case ModeMap:
		return mapIndex{}, nil
	case ModeSharded:
		router, err := NewRouter(routing)
		if err != nil {
			return nil, err
		}
		if routing == RoutingHash && shardCount == 0 {
			return nil, fmt.Errorf("%w: hash routing needs at least one shard", ErrInvalidShardID)
		}
		if routing == RoutingOrder {
			shardCount = 1
		}
		return &Sharded{router: router, initial: shardCount}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// CheckMode rejects a registry that was initialized under another mode.
func CheckMode(reg identity.Registry, idx Index) error {
	if reg.IndexMode != string(idx.Mode()) {
		return fmt.Errorf("%w: registry uses %q, service uses %q", ErrModeMismatch, reg.IndexMode, idx.Mode())
	}
	return nil
}

// ResolveShard validates a caller-supplied shard id against the shard cached
// on the identity's account. A nil supplied id selects the cached one.
func ResolveShard(reg identity.Registry, cached uint16, supplied *uint16) (uint16, error) {
	if supplied == nil {
		return cached, nil
	}
	if *supplied >= reg.ShardCount || *supplied != cached {
		return 0, fmt.Errorf("%w: %d", ErrInvalidShardID, *supplied)
	}
	return cached, nil
}
