package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName         = "CoaAuth"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultLoginMaxSkew    = 2 * time.Minute
	defaultStoreBackend    = "memory"
	defaultSQLitePath      = "coa.db"
	defaultIndexMode       = "sharded"
	defaultShardRouting    = "hash"
	defaultShardCount      = 16
	defaultUsersPerShard   = 1000
	defaultAddPolicy       = "primary"
	defaultRatePerMinute   = 120
	defaultEventStream     = "coa:events"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration. Values come from an
// optional config file overridden by environment variables.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	DatabaseURL        string
	RedisURL           string
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	StoreBackend       string
	SQLitePath         string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	LoginMaxSkew       time.Duration
	IndexMode          string
	ShardRouting       string
	ShardCount         uint16
	UsersPerShard      uint16
	AddWalletPolicy    string
	RateLimitPerMinute int
	EventStream        string
}

// Load reads configuration from the file at path (if non-empty) and the
// environment. Environment variables win over file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("app_name", defaultAppName)
	v.SetDefault("app_env", defaultAppEnv)
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("store_backend", defaultStoreBackend)
	v.SetDefault("sqlite_path", defaultSQLitePath)
	v.SetDefault("index_mode", defaultIndexMode)
	v.SetDefault("shard_routing", defaultShardRouting)
	v.SetDefault("add_wallet_policy", defaultAddPolicy)
	v.SetDefault("event_stream", defaultEventStream)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		AppName:         v.GetString("app_name"),
		AppEnv:          strings.ToLower(v.GetString("app_env")),
		Port:            v.GetString("port"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		DatabaseURL:     v.GetString("database_url"),
		RedisURL:        v.GetString("redis_url"),
		StoreBackend:    strings.ToLower(v.GetString("store_backend")),
		SQLitePath:      v.GetString("sqlite_path"),
		JWTSecret:       v.GetString("jwt_secret"),
		IndexMode:       strings.ToLower(v.GetString("index_mode")),
		ShardRouting:    strings.ToLower(v.GetString("shard_routing")),
		AddWalletPolicy: strings.ToLower(v.GetString("add_wallet_policy")),
		EventStream:     v.GetString("event_stream"),
	}

	var err error
	if cfg.ShutdownPeriod, err = seconds(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = seconds(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = duration(v, "ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.LoginMaxSkew, err = duration(v, "LOGIN_MAX_SKEW", defaultLoginMaxSkew); err != nil {
		return Config{}, err
	}
	if cfg.ShardCount, err = uint16Value(v, "SHARD_COUNT", defaultShardCount); err != nil {
		return Config{}, err
	}
	if cfg.UsersPerShard, err = uint16Value(v, "USERS_PER_SHARD", defaultUsersPerShard); err != nil {
		return Config{}, err
	}
	if raw := v.GetString("rate_limit_per_minute"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	} else {
		cfg.RateLimitPerMinute = defaultRatePerMinute
	}

	switch cfg.StoreBackend {
	case "memory", "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.JWTSecret == "" {
		if !cfg.IsDev() {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		cfg.JWTSecret = "dev-only-secret"
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// seconds reads an integer number of seconds from secondsKey, falling back to
// a Go duration string under durationKey.
func seconds(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if raw := v.GetString(secondsKey); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(n) * time.Second, nil
	}
	return duration(v, durationKey, fallback)
}

func duration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func uint16Value(v *viper.Viper, key string, fallback uint16) (uint16, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint16(n), nil
}
