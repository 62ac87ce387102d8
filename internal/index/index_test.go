package index

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/store"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

func testAddr(n uint32) wallet.Address {
	var a wallet.Address
	binary.BigEndian.PutUint32(a[:4], n)
	a[31] = 0x7f
	return a
}

func TestShardCapacity(t *testing.T) {
	sh := Shard{ID: 3}
	for i := uint32(0); i < MaxItems; i++ {
		if err := sh.Insert(testAddr(i), uint64(i+1)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := sh.Insert(testAddr(MaxItems), 5000); !errors.Is(err, ErrShardFull) {
		t.Fatalf("expected ErrShardFull, got %v", err)
	}
	if err := sh.Remove(testAddr(10)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := sh.Insert(testAddr(MaxItems), 5000); err != nil {
		t.Fatalf("insert after remove: %v", err)
	}
	if sh.Len() != MaxItems {
		t.Fatalf("expected %d entries, got %d", MaxItems, sh.Len())
	}
}

func TestShardUpsertKeepsPosition(t *testing.T) {
	var sh Shard
	for i := uint32(0); i < 3; i++ {
		if err := sh.Insert(testAddr(i), 1); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := sh.Insert(testAddr(1), 42); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if sh.Len() != 3 || sh.Entries[1].UserID != 42 || sh.Entries[1].Wallet != testAddr(1) {
		t.Fatalf("upsert did not update in place: %+v", sh.Entries)
	}
}

func TestShardUpsertWhenFull(t *testing.T) {
	var sh Shard
	for i := uint32(0); i < MaxItems; i++ {
		_ = sh.Insert(testAddr(i), 1)
	}
	if err := sh.Insert(testAddr(7), 99); err != nil {
		t.Fatalf("upsert into full shard should succeed: %v", err)
	}
}

func TestShardRemoveMissing(t *testing.T) {
	var sh Shard
	if err := sh.Remove(testAddr(1)); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIndexesRoundTrip(t *testing.T) {
	cases := []struct {
		mode    Mode
		routing Routing
	}{
		{ModeMap, RoutingHash},
		{ModeSharded, RoutingHash},
		{ModeSharded, RoutingOrder},
	}
	for _, tc := range cases {
		idx, err := New(tc.mode, tc.routing, 4)
		if err != nil {
			t.Fatalf("new %s: %v", tc.mode, err)
		}
		s := store.NewMemory()
		w := testAddr(9)
		err = s.Update(context.Background(), func(kv store.KV) error {
			reg := identity.Registry{ShardCount: idx.InitialShardCount(), UsersPerShard: 2}
			shardID, err := idx.Place(&reg, w)
			if err != nil {
				return err
			}
			if err := idx.Put(kv, shardID, w, 7); err != nil {
				return err
			}
			id, ok, err := idx.Lookup(kv, shardID, w)
			if err != nil {
				return err
			}
			if !ok || id != 7 {
				t.Fatalf("%s lookup got (%d, %v)", tc.mode, id, ok)
			}
			if err := idx.Remove(kv, shardID, w); err != nil {
				return err
			}
			if _, ok, _ := idx.Lookup(kv, shardID, w); ok {
				t.Fatalf("%s entry survived remove", tc.mode)
			}
			if err := idx.Remove(kv, shardID, w); !errors.Is(err, identity.ErrNotFound) {
				t.Fatalf("%s second remove: expected ErrNotFound, got %v", tc.mode, err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.mode, tc.routing, err)
		}
	}
}

func TestNoneIndexReadsAccounts(t *testing.T) {
	idx, _ := New(ModeNone, RoutingHash, 0)
	s := store.NewMemory()
	w := testAddr(1)
	err := s.Update(context.Background(), func(kv store.KV) error {
		if err := identity.NewRecords(kv).PutAccount(identity.Account{Wallet: w, UserID: 3}); err != nil {
			return err
		}
		id, ok, err := idx.Lookup(kv, 0, w)
		if err != nil {
			return err
		}
		if !ok || id != 3 {
			t.Fatalf("lookup got (%d, %v)", id, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestOrderRoutingGrowsShards(t *testing.T) {
	r, _ := NewRouter(RoutingOrder)
	reg := identity.Registry{ShardCount: 1, UsersPerShard: 2}
	var got []uint16
	for i := 0; i < 5; i++ {
		id, err := r.Route(&reg, testAddr(uint32(i)))
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		got = append(got, id)
		reg.TotalUsers++
	}
	want := []uint16{0, 0, 1, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("route %d: want %d, got %d", i, want[i], got[i])
		}
	}
	if reg.ShardCount != 3 {
		t.Fatalf("expected 3 shards, got %d", reg.ShardCount)
	}
}

func TestHashRoutingIsStable(t *testing.T) {
	w := testAddr(12345)
	first := HashShard(w, 16)
	for i := 0; i < 10; i++ {
		if HashShard(w, 16) != first {
			t.Fatalf("hash routing is not deterministic")
		}
	}
	if first >= 16 {
		t.Fatalf("shard %d out of range", first)
	}
}

func TestResolveShard(t *testing.T) {
	reg := identity.Registry{ShardCount: 4}
	id, err := ResolveShard(reg, 2, nil)
	if err != nil || id != 2 {
		t.Fatalf("omitted shard: got (%d, %v)", id, err)
	}
	two, five, one := uint16(2), uint16(5), uint16(1)
	if _, err := ResolveShard(reg, 2, &two); err != nil {
		t.Fatalf("matching shard rejected: %v", err)
	}
	if _, err := ResolveShard(reg, 2, &five); !errors.Is(err, ErrInvalidShardID) {
		t.Fatalf("out of range: expected ErrInvalidShardID, got %v", err)
	}
	if _, err := ResolveShard(reg, 2, &one); !errors.Is(err, ErrInvalidShardID) {
		t.Fatalf("wrong shard: expected ErrInvalidShardID, got %v", err)
	}
}

func TestCheckMode(t *testing.T) {
	idx, _ := New(ModeMap, RoutingHash, 0)
	if err := CheckMode(identity.Registry{IndexMode: "map"}, idx); err != nil {
		t.Fatalf("matching mode rejected: %v", err)
	}
	if err := CheckMode(identity.Registry{IndexMode: "sharded"}, idx); !errors.Is(err, ErrModeMismatch) {
		t.Fatalf("expected ErrModeMismatch, got %v", err)
	}
}
