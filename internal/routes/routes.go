package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/giftcard/internal/allocation"
	"github.com/congo-pay/giftcard/internal/card"
	"github.com/congo-pay/giftcard/internal/clock"
	"github.com/congo-pay/giftcard/internal/config"
	"github.com/congo-pay/giftcard/internal/ledger"
	"github.com/congo-pay/giftcard/internal/lock"
	"github.com/congo-pay/giftcard/internal/metrics"
	"github.com/congo-pay/giftcard/internal/middleware"
	"github.com/congo-pay/giftcard/internal/notification"
	"github.com/congo-pay/giftcard/internal/payments"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Store and Locker override the backends derived from DB and Cache.
	Store  ledger.Store
	Locker lock.Locker
	Clock  clock.Clock
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil && d.Store == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil && d.Locker == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	app.Use(metrics.HTTP())

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", metrics.Handler())

	store, locker := backends(d)
	engine := allocation.New(store, locker, d.Clock, d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)

	cardHandler := card.NewHandler(card.NewService(ledger.Cards(store), d.Clock))
	paymentHandler := payments.NewHandler(payments.NewService(engine, notifier, d.Logger))

	api := app.Group("/api/v1")
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c.UserContext()),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterCardRoutes(api, cardHandler)
	RegisterPaymentRoutes(api, paymentHandler)
	return nil
}

// backends picks Postgres and Redis when configured and falls back to the
// in-process implementations otherwise.
func backends(d Deps) (ledger.Store, lock.Locker) {
	store := d.Store
	if store == nil {
		if d.DB != nil {
			store = ledger.NewPostgresStore(d.DB)
		} else {
			d.Logger.Warn("no database configured, using in-memory card store")
			store = ledger.NewInMemory()
		}
	}

	locker := d.Locker
	if locker == nil {
		if d.Cache != nil {
			locker = lock.NewRedisLocker(d.Cache,
				lock.WithTTL(d.Cfg.RefundLockTTL),
				lock.WithWait(d.Cfg.RefundLockWait),
			)
		} else {
			d.Logger.Warn("no redis configured, using in-process refund lock")
			locker = lock.NewMemoryLocker(d.Cfg.RefundLockWait)
		}
	}
	return store, locker
}
