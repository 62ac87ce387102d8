package index

import (
	"fmt"
	"strconv"

	"github.com/congo-pay/coa_auth/internal/codec"
	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

const shardNamespace = "mapping_shard"

// ShardKey is the storage key of a shard record.
func ShardKey(id uint16) string {
	return store.Key(shardNamespace, strconv.FormatUint(uint64(id), 10))
}

// Sharded spreads entries over fixed-capacity shards. Shard records are
// created the first time an entry lands in them.
type Sharded struct {
	router  Router
	initial uint16
}

func (s *Sharded) Mode() Mode                { return ModeSharded }
func (s *Sharded) InitialShardCount() uint16 { return s.initial }

func (s *Sharded) Place(reg *identity.Registry, w wallet.Address) (uint16, error) {
	return s.router.Route(reg, w)
}

func (s *Sharded) Put(kv store.KV, shardID uint16, w wallet.Address, userID uint64) error {
	sh, _, err := s.Shard(kv, shardID)
	if err != nil {
		return err
	}
	if err := sh.Insert(w, userID); err != nil {
		return err
	}
	return saveShard(kv, sh)
}

func (s *Sharded) Remove(kv store.KV, shardID uint16, w wallet.Address) error {
	sh, _, err := s.Shard(kv, shardID)
	if err != nil {
		return err
	}
	if err := sh.Remove(w); err != nil {
		return err
	}
	return saveShard(kv, sh)
}

func (s *Sharded) Lookup(kv store.KV, shardID uint16, w wallet.Address) (uint64, bool, error) {
	sh, _, err := s.Shard(kv, shardID)
	if err != nil {
		return 0, false, err
	}
	id, ok := sh.Get(w)
	return id, ok, nil
}

// Shard loads a shard. A shard that was never written is returned empty.
func (s *Sharded) Shard(kv store.KV, shardID uint16) (Shard, bool, error) {
	sh := Shard{ID: shardID}
	raw, found, err := kv.Get(ShardKey(shardID))
	if err != nil || !found {
		return sh, false, err
	}
	if err := codec.Unmarshal(raw, &sh); err != nil {
		return Shard{}, false, fmt.Errorf("decode shard %d: %w", shardID, err)
	}
	return sh, true, nil
}

func saveShard(kv store.KV, sh Shard) error {
	raw, err := codec.Marshal(sh)
	if err != nil {
		return fmt.Errorf("encode shard %d: %w", sh.ID, err)
	}
	return kv.Put(ShardKey(sh.ID), raw)
}
