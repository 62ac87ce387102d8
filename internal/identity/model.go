package identity

import (
	"time"

	"github.com/congo-pay/coa_auth/internal/wallet"
)

// Registry is the singleton configuration and counter record.
type Registry struct {
	Owner         wallet.Address `cbor:"owner" json:"owner"`
	NextUserID    uint64         `cbor:"next_user_id" json:"next_user_id"`
	TotalUsers    uint64         `cbor:"total_users" json:"total_users"`
	ActiveUsers   uint64         `cbor:"active_users" json:"active_users"`
	ShardCount    uint16         `cbor:"shard_count" json:"shard_count"`
	UsersPerShard uint16         `cbor:"users_per_shard" json:"users_per_shard"`
	IndexMode     string         `cbor:"index_mode" json:"index_mode"`
	CreatedAt     time.Time      `cbor:"created_at" json:"created_at"`
}

// allocateUserID hands out the next identity id. Ids start at 1 and are never reused.
func (r *Registry) allocateUserID() uint64 {
	id := r.NextUserID
	r.NextUserID++
	r.TotalUsers++
	r.ActiveUsers++
	return id
}

// State is the position of a wallet in the authorization state machine.
type State int

const (
	Unbound State = iota
	PrimaryActive
	AuthorizedActive
)

func (s State) String() string {
	switch s {
	case PrimaryActive:
		return "primary"
	case AuthorizedActive:
		return "authorized"
	default:
		return "unbound"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Account is the per-wallet record. UserID 0 means the wallet is not part of
// any identity.
type Account struct {
	Wallet      wallet.Address `cbor:"wallet" json:"wallet"`
	UserID      uint64         `cbor:"user_id" json:"user_id"`
	IsPrimary   bool           `cbor:"is_primary" json:"is_primary"`
	OnboardDate time.Time      `cbor:"onboard_date" json:"onboard_date"`
	ShardID     uint16         `cbor:"shard_id" json:"shard_id"`
}

// State derives the state machine position from the record.
func (a Account) State() State {
	switch {
	case a.UserID == 0:
		return Unbound
	case a.IsPrimary:
		return PrimaryActive
	default:
		return AuthorizedActive
	}
}

// Bound reports whether the wallet belongs to an identity.
func (a Account) Bound() bool {
	return a.UserID != 0
}

// unbind resets the account to Unbound. OnboardDate is kept: it records when
// the record was created, not when the wallet last joined.
func (a *Account) unbind() {
	a.UserID = 0
	a.IsPrimary = false
}

// Group lists the wallets of one identity. AuthorizedWallets never contains
// the primary and keeps insertion order.
type Group struct {
	UserID            uint64           `cbor:"user_id" json:"user_id"`
	PrimaryWallet     wallet.Address   `cbor:"primary_wallet" json:"primary_wallet"`
	AuthorizedWallets []wallet.Address `cbor:"authorized_wallets" json:"authorized_wallets"`
	ShardID           uint16           `cbor:"shard_id" json:"shard_id"`
	CreatedAt         time.Time        `cbor:"created_at" json:"created_at"`
}

// IsAuthorized reports whether w is the primary or an authorized wallet.
func (g Group) IsAuthorized(w wallet.Address) bool {
	return g.PrimaryWallet == w || g.indexOf(w) >= 0
}

// Members returns every wallet of the identity, primary first.
func (g Group) Members() []wallet.Address {
	out := make([]wallet.Address, 0, len(g.AuthorizedWallets)+1)
	out = append(out, g.PrimaryWallet)
	return append(out, g.AuthorizedWallets...)
}

func (g Group) indexOf(w wallet.Address) int {
	for i, member := range g.AuthorizedWallets {
		if member == w {
			return i
		}
	}
	return -1
}

func (g *Group) addAuthorized(w wallet.Address) {
	if g.indexOf(w) >= 0 {
		return
	}
	g.AuthorizedWallets = append(g.AuthorizedWallets, w)
}

func (g *Group) removeAuthorized(w wallet.Address) bool {
	i := g.indexOf(w)
	if i < 0 {
		return false
	}
	g.AuthorizedWallets = append(g.AuthorizedWallets[:i], g.AuthorizedWallets[i+1:]...)
	return true
}
