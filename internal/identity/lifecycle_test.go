package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

func addr(b byte) wallet.Address {
	var a wallet.Address
	a[0] = b
	a[31] = b
	return a
}

func withRecords(t *testing.T, s store.Store, fn func(r *Records) error) error {
	t.Helper()
	return s.Update(context.Background(), func(kv store.KV) error {
		return fn(NewRecords(kv))
	})
}

func seedRegistry(t *testing.T, s store.Store) {
	t.Helper()
	err := withRecords(t, s, func(r *Records) error {
		return r.PutRegistry(Registry{NextUserID: 1, UsersPerShard: 1000})
	})
	if err != nil {
		t.Fatalf("seed registry: %v", err)
	}
}

func TestRegistryMissing(t *testing.T) {
	s := store.NewMemory()
	err := withRecords(t, s, func(r *Records) error {
		_, err := r.Registry()
		return err
	})
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestCreateIdentityAllocatesSequentialIDs(t *testing.T) {
	s := store.NewMemory()
	seedRegistry(t, s)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, w := range []wallet.Address{addr(1), addr(2)} {
		err := withRecords(t, s, func(r *Records) error {
			reg, err := r.Registry()
			if err != nil {
				return err
			}
			acc, g, err := r.CreateIdentity(&reg, w, now, 0)
			if err != nil {
				return err
			}
			if acc.UserID != uint64(i+1) || !acc.IsPrimary || g.PrimaryWallet != w {
				t.Fatalf("unexpected identity: %+v %+v", acc, g)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("create identity %d: %v", i, err)
		}
	}

	_ = withRecords(t, s, func(r *Records) error {
		reg, _ := r.Registry()
		if reg.NextUserID != 3 || reg.TotalUsers != 2 || reg.ActiveUsers != 2 {
			t.Fatalf("unexpected counters: %+v", reg)
		}
		return nil
	})
}

func TestCreateIdentityRejectsBoundWallet(t *testing.T) {
	s := store.NewMemory()
	seedRegistry(t, s)
	create := func() error {
		return withRecords(t, s, func(r *Records) error {
			reg, err := r.Registry()
			if err != nil {
				return err
			}
			_, _, err = r.CreateIdentity(&reg, addr(1), time.Now().UTC(), 0)
			return err
		})
	}
	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(); !errors.Is(err, ErrAlreadyOnboarded) {
		t.Fatalf("expected ErrAlreadyOnboarded, got %v", err)
	}
	_ = withRecords(t, s, func(r *Records) error {
		reg, _ := r.Registry()
		if reg.TotalUsers != 1 || reg.NextUserID != 2 {
			t.Fatalf("failed create must not move counters: %+v", reg)
		}
		return nil
	})
}

func TestOnboardDateIsKeptAcrossRebinding(t *testing.T) {
	s := store.NewMemory()
	seedRegistry(t, s)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	err := withRecords(t, s, func(r *Records) error {
		reg, _ := r.Registry()
		_, g, err := r.CreateIdentity(&reg, addr(1), first, 0)
		if err != nil {
			return err
		}
		if _, err := r.AddMember(&g, addr(2), first); err != nil {
			return err
		}
		if _, err := r.RemoveMember(&g, addr(2)); err != nil {
			return err
		}
		acc, err := r.AddMember(&g, addr(2), later)
		if err != nil {
			return err
		}
		if !acc.OnboardDate.Equal(first) {
			t.Fatalf("onboard date rewritten: %v", acc.OnboardDate)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
}

func TestPromoteEvictVersusDemote(t *testing.T) {
	for _, evict := range []bool{true, false} {
		s := store.NewMemory()
		seedRegistry(t, s)
		now := time.Now().UTC()
		err := withRecords(t, s, func(r *Records) error {
			reg, _ := r.Registry()
			_, g, err := r.CreateIdentity(&reg, addr(1), now, 0)
			if err != nil {
				return err
			}
			if _, err := r.AddMember(&g, addr(2), now); err != nil {
				return err
			}
			prev, err := r.Promote(&g, addr(2), evict)
			if err != nil {
				return err
			}
			if g.PrimaryWallet != addr(2) {
				t.Fatalf("primary not moved: %+v", g)
			}
			if evict {
				if prev.Bound() || g.IsAuthorized(addr(1)) {
					t.Fatalf("evicted primary still bound: %+v %+v", prev, g)
				}
			} else {
				if prev.State() != AuthorizedActive || !g.IsAuthorized(addr(1)) {
					t.Fatalf("demoted primary should be authorized: %+v %+v", prev, g)
				}
			}
			next, _, _ := r.Account(addr(2))
			if next.State() != PrimaryActive {
				t.Fatalf("new primary state %s", next.State())
			}
			return nil
		})
		if err != nil {
			t.Fatalf("promote evict=%v: %v", evict, err)
		}
	}
}

func TestPromoteRejectsOutsider(t *testing.T) {
	s := store.NewMemory()
	seedRegistry(t, s)
	err := withRecords(t, s, func(r *Records) error {
		reg, _ := r.Registry()
		_, g, err := r.CreateIdentity(&reg, addr(1), time.Now().UTC(), 0)
		if err != nil {
			return err
		}
		if _, _, err := r.CreateIdentity(&reg, addr(9), time.Now().UTC(), 0); err != nil {
			return err
		}
		_, err = r.Promote(&g, addr(9), false)
		return err
	})
	if !errors.Is(err, ErrGroupMismatch) {
		t.Fatalf("expected ErrGroupMismatch, got %v", err)
	}
}

func TestDissolveUnbindsAllMembers(t *testing.T) {
	s := store.NewMemory()
	seedRegistry(t, s)
	now := time.Now().UTC()
	err := withRecords(t, s, func(r *Records) error {
		reg, _ := r.Registry()
		_, g, err := r.CreateIdentity(&reg, addr(1), now, 0)
		if err != nil {
			return err
		}
		for _, w := range []wallet.Address{addr(2), addr(3)} {
			if _, err := r.AddMember(&g, w, now); err != nil {
				return err
			}
		}
		released, err := r.Dissolve(&reg, g)
		if err != nil {
			return err
		}
		if len(released) != 3 {
			t.Fatalf("expected 3 released wallets, got %d", len(released))
		}
		for _, w := range released {
			acc, _, _ := r.Account(w)
			if acc.Bound() {
				t.Fatalf("wallet %s still bound after dissolve", w)
			}
		}
		if _, found, _ := r.Group(g.UserID); found {
			t.Fatalf("group record survived dissolve")
		}
		if reg.ActiveUsers != 0 || reg.TotalUsers != 1 {
			t.Fatalf("unexpected counters after dissolve: %+v", reg)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("dissolve: %v", err)
	}
}
