package index

import (
	"fmt"

	"github.com/congo-pay/coa_auth/internal/codec"
	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

const mapNamespace = "pubkey_map"

type mapEntry struct {
	UserID uint64 `cbor:"user_id"`
}

// mapIndex stores one record per wallet, so it has no capacity ceiling.
type mapIndex struct{}

func mapKey(w wallet.Address) string {
	return store.Key(mapNamespace, w.String())
}

func (mapIndex) Mode() Mode                { return ModeMap }
func (mapIndex) InitialShardCount() uint16 { return 0 }

func (mapIndex) Place(*identity.Registry, wallet.Address) (uint16, error) {
	return 0, nil
}

func (mapIndex) Put(kv store.KV, _ uint16, w wallet.Address, userID uint64) error {
	raw, err := codec.Marshal(mapEntry{UserID: userID})
	if err != nil {
		return fmt.Errorf("encode map entry: %w", err)
	}
	return kv.Put(mapKey(w), raw)
}

func (mapIndex) Remove(kv store.KV, _ uint16, w wallet.Address) error {
	_, found, err := kv.Get(mapKey(w))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("wallet %s in map: %w", w, identity.ErrNotFound)
	}
	return kv.Delete(mapKey(w))
}

func (mapIndex) Lookup(kv store.KV, _ uint16, w wallet.Address) (uint64, bool, error) {
	raw, found, err := kv.Get(mapKey(w))
	if err != nil || !found {
		return 0, false, err
	}
	var e mapEntry
	if err := codec.Unmarshal(raw, &e); err != nil {
		return 0, false, fmt.Errorf("decode map entry: %w", err)
	}
	return e.UserID, true, nil
}
