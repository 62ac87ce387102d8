package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/congo-pay/coa_auth/internal/config"
	"github.com/congo-pay/coa_auth/internal/store"
)

// Resources are the external connections the service runs on. Exactly one of
// DB and SQL is set for the postgres and sqlite backends; Cache is set when
// REDIS_URL is configured.
type Resources struct {
	Store store.Store
	DB    *pgxpool.Pool
	SQL   *gorm.DB
	Cache *redis.Client
}

// Open connects the record store selected by STORE_BACKEND and, when
// configured, Redis.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Resources, error) {
	res := &Resources{}

	switch cfg.StoreBackend {
	case "postgres":
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		res.DB, res.Store = db, pg
	case "sqlite":
		db, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sqlStore, err := store.NewSQL(db)
		if err != nil {
			closeSQL(db)
			return nil, err
		}
		res.SQL, res.Store = db, sqlStore
	case "memory", "":
		logger.Warn("using in-memory store; state is lost on restart")
		res.Store = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.Cache = cache
	}

	return res, nil
}

// Close releases every open connection.
func (r *Resources) Close() error {
	var errs []error
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	if r.DB != nil {
		r.DB.Close()
	}
	if r.SQL != nil {
		errs = append(errs, closeSQL(r.SQL))
	}
	return errors.Join(errs...)
}

func closeSQL(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
