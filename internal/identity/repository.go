package identity

import (
	"fmt"
	"strconv"

	"github.com/congo-pay/coa_auth/internal/codec"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

const (
	registryKey      = "coa_config"
	accountNamespace = "user_account"
	groupNamespace   = "coa_group"
)

// AccountKey is the storage key of a wallet's account record.
func AccountKey(w wallet.Address) string {
	return store.Key(accountNamespace, w.String())
}

// GroupKey is the storage key of an identity's group record.
func GroupKey(userID uint64) string {
	return store.Key(groupNamespace, strconv.FormatUint(userID, 10))
}

// Records gives typed access to identity records inside one store transaction.
type Records struct {
	kv store.KV
}

// NewRecords wraps a transaction.
func NewRecords(kv store.KV) *Records {
	return &Records{kv: kv}
}

// Registry loads the singleton registry.
func (r *Records) Registry() (Registry, error) {
	var reg Registry
	found, err := r.load(registryKey, &reg)
	if err != nil {
		return Registry{}, err
	}
	if !found {
		return Registry{}, ErrNotInitialized
	}
	return reg, nil
}

// RegistryExists reports whether initialize has already run.
func (r *Records) RegistryExists() (bool, error) {
	_, found, err := r.kv.Get(registryKey)
	return found, err
}

// PutRegistry replaces the registry record.
func (r *Records) PutRegistry(reg Registry) error {
	return r.save(registryKey, reg)
}

// Account loads a wallet's record. A missing record is reported with
// found=false and a zero Account carrying only the wallet.
func (r *Records) Account(w wallet.Address) (Account, bool, error) {
	acc := Account{Wallet: w}
	found, err := r.load(AccountKey(w), &acc)
	if err != nil {
		return Account{}, false, err
	}
	return acc, found, nil
}

// PutAccount replaces a wallet's record.
func (r *Records) PutAccount(acc Account) error {
	return r.save(AccountKey(acc.Wallet), acc)
}

// Group loads an identity's member list.
func (r *Records) Group(userID uint64) (Group, bool, error) {
	var g Group
	found, err := r.load(GroupKey(userID), &g)
	if err != nil {
		return Group{}, false, err
	}
	return g, found, nil
}

// PutGroup replaces an identity's member list.
func (r *Records) PutGroup(g Group) error {
	return r.save(GroupKey(g.UserID), g)
}

// DeleteGroup removes an identity's member list.
func (r *Records) DeleteGroup(userID uint64) error {
	return r.kv.Delete(GroupKey(userID))
}

func (r *Records) load(key string, v any) (bool, error) {
	raw, found, err := r.kv.Get(key)
	if err != nil || !found {
		return false, err
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *Records) save(key string, v any) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.kv.Put(key, raw)
}
