package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sqlRecord struct {
	ID        string `gorm:"primaryKey"`
	Body      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (sqlRecord) TableName() string { return "coa_records" }

// SQLStore persists records through gorm. It is used with SQLite for single
// node deployments; the connection pool must be limited to one connection so
// write transactions are serialized by the database handle.
type SQLStore struct {
	db *gorm.DB
}

// NewSQL migrates the records table and returns a gorm-backed store.
func NewSQL(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&sqlRecord{}); err != nil {
		return nil, fmt.Errorf("migrate coa_records: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Update runs fn inside a gorm transaction.
func (s *SQLStore) Update(ctx context.Context, fn func(kv KV) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormKV{tx: tx})
	})
}

// View runs fn inside a transaction that is always rolled back.
func (s *SQLStore) View(ctx context.Context, fn func(kv KV) error) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()
	return fn(gormKV{tx: tx, readOnly: true})
}

type gormKV struct {
	tx       *gorm.DB
	readOnly bool
}

func (k gormKV) Get(key string) ([]byte, bool, error) {
	var rec sqlRecord
	err := k.tx.Where("id = ?", key).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return rec.Body, true, nil
}

func (k gormKV) Put(key string, value []byte) error {
	if k.readOnly {
		return fmt.Errorf("put %s: read-only transaction", key)
	}
	rec := sqlRecord{ID: key, Body: value, UpdatedAt: time.Now().UTC()}
	err := k.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (k gormKV) Delete(key string) error {
	if k.readOnly {
		return fmt.Errorf("delete %s: read-only transaction", key)
	}
	if err := k.tx.Where("id = ?", key).Delete(&sqlRecord{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
