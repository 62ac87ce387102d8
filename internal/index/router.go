package index

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/blake3"

	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// Routing selects how a new identity is assigned to a shard.
type Routing string

const (
	// RoutingHash derives the shard from the primary wallet address, so any
	// client can compute it without reading registry counters.
	RoutingHash Routing = "hash"
	// RoutingOrder fills shards in onboarding order.
	RoutingOrder Routing = "order"
)

// ParseRouting validates a configured routing name.
func ParseRouting(s string) (Routing, error) {
	switch r := Routing(s); r {
	case RoutingHash, RoutingOrder:
		return r, nil
	}
	return "", fmt.Errorf("%w: routing %q", ErrUnknownMode, s)
}

// Router places new identities.
type Router interface {
	Route(reg *identity.Registry, w wallet.Address) (uint16, error)
}

// NewRouter returns the router for r.
func NewRouter(r Routing) (Router, error) {
	switch r {
	case RoutingHash:
		return hashRouter{}, nil
	case RoutingOrder:
		return orderRouter{}, nil
	}
	return nil, fmt.Errorf("%w: routing %q", ErrUnknownMode, r)
}

type hashRouter struct{}

func (hashRouter) Route(reg *identity.Registry, w wallet.Address) (uint16, error) {
	if reg.ShardCount == 0 {
		return 0, ErrInvalidShardID
	}
	return HashShard(w, reg.ShardCount), nil
}

// HashShard maps an address onto one of count shards.
func HashShard(w wallet.Address, count uint16) uint16 {
	sum := blake3.Sum256(w[:])
	return uint16(binary.BigEndian.Uint64(sum[:8]) % uint64(count))
}

type orderRouter struct{}

func (orderRouter) Route(reg *identity.Registry, _ wallet.Address) (uint16, error) {
	if reg.UsersPerShard == 0 {
		return 0, ErrInvalidShardID
	}
	target := reg.TotalUsers / uint64(reg.UsersPerShard)
	if target > math.MaxUint16-1 {
		return 0, fmt.Errorf("%w: no shard left for user %d", ErrShardFull, reg.TotalUsers)
	}
	id := uint16(target)
	if id >= reg.ShardCount {
		reg.ShardCount = id + 1
	}
	return id, nil
}
