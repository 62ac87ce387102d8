package index

import (
	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// noneIndex keeps no separate mapping: the account record is the index.
type noneIndex struct{}

func (noneIndex) Mode() Mode                { return ModeNone }
func (noneIndex) InitialShardCount() uint16 { return 0 }

func (noneIndex) Place(*identity.Registry, wallet.Address) (uint16, error) {
	return 0, nil
}

func (noneIndex) Put(store.KV, uint16, wallet.Address, uint64) error { return nil }

func (noneIndex) Remove(store.KV, uint16, wallet.Address) error { return nil }

func (noneIndex) Lookup(kv store.KV, _ uint16, w wallet.Address) (uint64, bool, error) {
	acc, _, err := identity.NewRecords(kv).Account(w)
	if err != nil {
		return 0, false, err
	}
	return acc.UserID, acc.Bound(), nil
}
