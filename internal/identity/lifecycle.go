package identity

import (
	"fmt"
	"time"

	"github.com/congo-pay/coa_auth/internal/wallet"
)

// The functions below are the only writers of account and group records.
// Each one keeps the account flags and the group member list consistent and
// persists every record it touched; callers run them inside a single store
// transaction together with their own checks.

// Authority resolves the identity a caller acts for. It fails with
// ErrUnauthorized when the caller is unbound or is not listed in its group.
func (r *Records) Authority(caller wallet.Address) (Account, Group, error) {
	acc, _, err := r.Account(caller)
	if err != nil {
		return Account{}, Group{}, err
	}
	if !acc.Bound() {
		return Account{}, Group{}, ErrUnauthorized
	}
	g, found, err := r.Group(acc.UserID)
	if err != nil {
		return Account{}, Group{}, err
	}
	if !found || !g.IsAuthorized(caller) {
		return Account{}, Group{}, ErrUnauthorized
	}
	return acc, g, nil
}

// CreateIdentity binds an unbound wallet to a freshly allocated identity id
// as its primary and persists the registry counters.
func (r *Records) CreateIdentity(reg *Registry, w wallet.Address, now time.Time, shardID uint16) (Account, Group, error) {
	acc, _, err := r.Account(w)
	if err != nil {
		return Account{}, Group{}, err
	}
	if acc.Bound() {
		return Account{}, Group{}, ErrAlreadyOnboarded
	}

	acc.UserID = reg.allocateUserID()
	acc.IsPrimary = true
	acc.ShardID = shardID
	if acc.OnboardDate.IsZero() {
		acc.OnboardDate = now
	}
	g := Group{
		UserID:        acc.UserID,
		PrimaryWallet: w,
		ShardID:       shardID,
		CreatedAt:     now,
	}

	if err := r.PutRegistry(*reg); err != nil {
		return Account{}, Group{}, err
	}
	if err := r.PutAccount(acc); err != nil {
		return Account{}, Group{}, err
	}
	if err := r.PutGroup(g); err != nil {
		return Account{}, Group{}, err
	}
	return acc, g, nil
}

// AddMember binds an unbound wallet to g as an authorized (non-primary) wallet.
func (r *Records) AddMember(g *Group, w wallet.Address, now time.Time) (Account, error) {
	acc, _, err := r.Account(w)
	if err != nil {
		return Account{}, err
	}
	if acc.Bound() {
		return Account{}, ErrAlreadyOnboarded
	}

	acc.UserID = g.UserID
	acc.IsPrimary = false
	acc.ShardID = g.ShardID
	if acc.OnboardDate.IsZero() {
		acc.OnboardDate = now
	}
	g.addAuthorized(w)

	if err := r.PutAccount(acc); err != nil {
		return Account{}, err
	}
	if err := r.PutGroup(*g); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// RemoveMember returns an authorized wallet of g to Unbound. The primary
// cannot be removed this way.
func (r *Records) RemoveMember(g *Group, w wallet.Address) (Account, error) {
	if g.PrimaryWallet == w {
		return Account{}, ErrUnauthorized
	}
	acc, _, err := r.Account(w)
	if err != nil {
		return Account{}, err
	}
	if acc.UserID != g.UserID || !g.removeAuthorized(w) {
		return Account{}, fmt.Errorf("wallet %s in identity %d: %w", w, g.UserID, ErrNotFound)
	}

	acc.unbind()
	if err := r.PutAccount(acc); err != nil {
		return Account{}, err
	}
	if err := r.PutGroup(*g); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Promote makes newPrimary the primary of g. With evict the previous primary
// loses the identity entirely (emergency recovery); otherwise it stays on as
// an authorized wallet (routine handoff). It returns the previous primary's
// updated account.
func (r *Records) Promote(g *Group, newPrimary wallet.Address, evict bool) (Account, error) {
	oldPrimary := g.PrimaryWallet
	if oldPrimary == newPrimary {
		return Account{}, ErrSameAccount
	}
	next, _, err := r.Account(newPrimary)
	if err != nil {
		return Account{}, err
	}
	if next.UserID != g.UserID || g.indexOf(newPrimary) < 0 {
		return Account{}, ErrGroupMismatch
	}
	prev, _, err := r.Account(oldPrimary)
	if err != nil {
		return Account{}, err
	}

	g.removeAuthorized(newPrimary)
	g.PrimaryWallet = newPrimary
	next.IsPrimary = true

	if evict {
		prev.unbind()
	} else {
		prev.IsPrimary = false
		g.addAuthorized(oldPrimary)
	}

	if err := r.PutAccount(prev); err != nil {
		return Account{}, err
	}
	if err := r.PutAccount(next); err != nil {
		return Account{}, err
	}
	if err := r.PutGroup(*g); err != nil {
		return Account{}, err
	}
	return prev, nil
}

// Dissolve unbinds every wallet of g and deletes the group. It returns the
// wallets that were released.
func (r *Records) Dissolve(reg *Registry, g Group) ([]wallet.Address, error) {
	members := g.Members()
	for _, w := range members {
		acc, _, err := r.Account(w)
		if err != nil {
			return nil, err
		}
		if acc.UserID != g.UserID {
			continue
		}
		acc.unbind()
		if err := r.PutAccount(acc); err != nil {
			return nil, err
		}
	}
	if err := r.DeleteGroup(g.UserID); err != nil {
		return nil, err
	}
	if reg.ActiveUsers > 0 {
		reg.ActiveUsers--
	}
	if err := r.PutRegistry(*reg); err != nil {
		return nil, err
	}
	return members, nil
}
