package index

import (
	"fmt"

	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// MaxItems is the fixed capacity of one shard.
const MaxItems = 1000

// Entry maps one wallet to its identity id.
type Entry struct {
	_      struct{}       `cbor:",toarray"`
	Wallet wallet.Address `json:"wallet"`
	UserID uint64         `json:"user_id"`
}

// Shard is a bounded, ordered set of entries, unique by wallet.
type Shard struct {
	ID      uint16  `cbor:"id" json:"id"`
	Entries []Entry `cbor:"entries" json:"entries"`
}

// Len returns the number of entries.
func (s Shard) Len() int {
	return len(s.Entries)
}

// Insert upserts the mapping for w. An existing entry is updated in place and
// keeps its position; a new one is appended.
func (s *Shard) Insert(w wallet.Address, userID uint64) error {
	for i := range s.Entries {
		if s.Entries[i].Wallet == w {
			s.Entries[i].UserID = userID
			return nil
		}
	}
	if len(s.Entries) >= MaxItems {
		return fmt.Errorf("shard %d: %w", s.ID, ErrShardFull)
	}
	s.Entries = append(s.Entries, Entry{Wallet: w, UserID: userID})
	return nil
}

// Get returns the identity id stored for w.
func (s Shard) Get(w wallet.Address) (uint64, bool) {
	for _, e := range s.Entries {
		if e.Wallet == w {
			return e.UserID, true
		}
	}
	return 0, false
}

// Remove deletes the entry for w, preserving the order of the rest.
func (s *Shard) Remove(w wallet.Address) error {
	for i := range s.Entries {
		if s.Entries[i].Wallet == w {
			s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("wallet %s in shard %d: %w", w, s.ID, identity.ErrNotFound)
}
