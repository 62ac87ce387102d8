package store

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

const recordsTable = "records"

type memRecord struct {
	ID   string
	Body []byte
}

// MemoryStore keeps records in a go-memdb database. memdb admits a single
// write transaction at a time and aborted writes are never visible.
type MemoryStore struct {
	db *memdb.MemDB
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			recordsTable: {
				Name: recordsTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// NewMemory creates an empty in-memory store useful for tests and development.
func NewMemory() *MemoryStore {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		// The schema is static; failure here is a programming error.
		panic(fmt.Sprintf("store: memdb schema: %v", err))
	}
	return &MemoryStore{db: db}
}

// Update runs fn inside a write transaction.
func (s *MemoryStore) Update(ctx context.Context, fn func(kv KV) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := fn(memKV{txn: txn}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// View runs fn against a read-only snapshot.
func (s *MemoryStore) View(ctx context.Context, fn func(kv KV) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	return fn(memKV{txn: txn})
}

type memKV struct {
	txn *memdb.Txn
}

func (m memKV) Get(key string) ([]byte, bool, error) {
	raw, err := m.txn.First(recordsTable, "id", key)
	if err != nil {
		return nil, false, fmt.Errorf("memdb get %s: %w", key, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	rec := raw.(*memRecord)
	return append([]byte(nil), rec.Body...), true, nil
}

func (m memKV) Put(key string, value []byte) error {
	rec := &memRecord{ID: key, Body: append([]byte(nil), value...)}
	if err := m.txn.Insert(recordsTable, rec); err != nil {
		return fmt.Errorf("memdb put %s: %w", key, err)
	}
	return nil
}

func (m memKV) Delete(key string) error {
	if _, err := m.txn.DeleteAll(recordsTable, "id", key); err != nil {
		return fmt.Errorf("memdb delete %s: %w", key, err)
	}
	return nil
}
