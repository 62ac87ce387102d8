package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/congo-pay/coa_auth/internal/auth"
	"github.com/congo-pay/coa_auth/internal/coa"
	"github.com/congo-pay/coa_auth/internal/config"
	"github.com/congo-pay/coa_auth/internal/events"
	"github.com/congo-pay/coa_auth/internal/index"
	"github.com/congo-pay/coa_auth/internal/metrics"
	"github.com/congo-pay/coa_auth/internal/middleware"
	"github.com/congo-pay/coa_auth/internal/ratelimit"
	"github.com/congo-pay/coa_auth/internal/store"
)

// Deps aggregates shared dependencies required to wire routes. DB and SQL are
// only used for health checks; Store is the record store built on top of them.
type Deps struct {
	Cfg    config.Config
	Store  store.Store
	DB     *pgxpool.Pool
	SQL    *gorm.DB
	Cache  *redis.Client
	Logger *slog.Logger
	Now    func() time.Time
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("record store is required")
	}
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	mode, err := index.ParseMode(d.Cfg.IndexMode)
	if err != nil {
		return err
	}
	routing, err := index.ParseRouting(d.Cfg.ShardRouting)
	if err != nil {
		return err
	}
	idx, err := index.New(mode, routing, d.Cfg.ShardCount)
	if err != nil {
		return err
	}
	policy, err := coa.ParsePolicy(d.Cfg.AddWalletPolicy)
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	publishers := events.Fanout{events.NewLogPublisher(d.Logger)}
	if d.Cache != nil && d.Cfg.EventStream != "" {
		publishers = append(publishers, events.NewStreamPublisher(d.Cache, d.Cfg.EventStream, 100_000))
	}

	coaSvc := coa.NewService(coa.Deps{
		Store:         d.Store,
		Index:         idx,
		Policy:        policy,
		UsersPerShard: d.Cfg.UsersPerShard,
		Events:        publishers,
		Metrics:       metrics.New(reg),
		Logger:        d.Logger,
		Now:           d.Now,
	})
	authSvc := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, d.Cfg.LoginMaxSkew)

	local := ratelimit.PerMinute(d.Cfg.RateLimitPerMinute)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, auth.NewHandler(authSvc),
		middleware.RateLimit(d.Cache, local, d.Cfg.RateLimitPerMinute, "login:", middleware.LoginKey))

	protect := []fiber.Handler{
		middleware.WalletAuth(authSvc),
		middleware.RateLimit(d.Cache, local, d.Cfg.RateLimitPerMinute, "caller:", middleware.CallerKey),
	}
	if d.Cache != nil {
		protect = append(protect, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterCoaRoutes(api, coa.NewHandler(coaSvc), protect...)

	d.Logger.Info("routes configured",
		slog.String("index_mode", string(mode)),
		slog.String("shard_routing", string(routing)),
		slog.String("add_wallet_policy", string(policy)),
		slog.String("store_backend", d.Cfg.StoreBackend))
	return nil
}
