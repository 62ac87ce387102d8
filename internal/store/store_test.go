package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errBoom = errors.New("boom")

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "coa.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	s, err := NewSQL(db)
	if err != nil {
		t.Fatalf("new sql store: %v", err)
	}
	return s
}

func backends(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": newSQLiteStore(t),
	}
}

func TestStoreCommitAndRead(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.Update(ctx, func(kv KV) error {
				if err := kv.Put(Key("user_account", "a"), []byte("one")); err != nil {
					return err
				}
				// Reads inside the transaction observe its own writes.
				got, found, err := kv.Get(Key("user_account", "a"))
				if err != nil {
					return err
				}
				if !found || string(got) != "one" {
					t.Fatalf("expected own write to be visible, got %q found=%v", got, found)
				}
				return kv.Put(Key("user_account", "a"), []byte("two"))
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			err = s.View(ctx, func(kv KV) error {
				got, found, err := kv.Get(Key("user_account", "a"))
				if err != nil {
					return err
				}
				if !found || string(got) != "two" {
					t.Fatalf("expected committed value two, got %q found=%v", got, found)
				}
				_, found, err = kv.Get(Key("user_account", "missing"))
				if err != nil {
					return err
				}
				if found {
					t.Fatalf("missing key reported as found")
				}
				return nil
			})
			if err != nil {
				t.Fatalf("view: %v", err)
			}
		})
	}
}

func TestStoreRollsBackOnError(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Update(ctx, func(kv KV) error {
				return kv.Put("coa_config", []byte("v1"))
			}); err != nil {
				t.Fatalf("seed: %v", err)
			}

			err := s.Update(ctx, func(kv KV) error {
				if err := kv.Put("coa_config", []byte("v2")); err != nil {
					return err
				}
				if err := kv.Put(Key("mapping_shard", "0"), []byte("shard")); err != nil {
					return err
				}
				return errBoom
			})
			if !errors.Is(err, errBoom) {
				t.Fatalf("expected errBoom, got %v", err)
			}

			_ = s.View(ctx, func(kv KV) error {
				got, _, _ := kv.Get("coa_config")
				if string(got) != "v1" {
					t.Fatalf("expected rollback to keep v1, got %q", got)
				}
				if _, found, _ := kv.Get(Key("mapping_shard", "0")); found {
					t.Fatalf("write from failed transaction is visible")
				}
				return nil
			})
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("pubkey_map", "w")
			if err := s.Update(ctx, func(kv KV) error { return kv.Put(key, []byte{1}) }); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Update(ctx, func(kv KV) error { return kv.Delete(key) }); err != nil {
				t.Fatalf("delete: %v", err)
			}
			_ = s.View(ctx, func(kv KV) error {
				if _, found, _ := kv.Get(key); found {
					t.Fatalf("deleted key still present")
				}
				return nil
			})
		})
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Update(ctx, func(kv KV) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run with a cancelled context")
	}
}

func TestKey(t *testing.T) {
	if got := Key("coa_config"); got != "coa_config" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := Key("mapping_shard", "3"); got != "mapping_shard/3" {
		t.Fatalf("unexpected key %q", got)
	}
}
