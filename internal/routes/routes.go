package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/cronos-sched/cronos/internal/account"
	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/config"
	"github.com/cronos-sched/cronos/internal/middleware"
	"github.com/cronos-sched/cronos/internal/store"
)

// Ledger is what the RPC surface needs from the chain.
type Ledger interface {
	Push(ctx context.Context, signed chain.SignedTransaction) (chain.Receipt, error)
	Rows(ctx context.Context, code, scope, table string) ([]any, error)
	Now() time.Time
}

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Store    store.Store
	Cache    *redis.Client
	Logger   *slog.Logger
	Ledger   Ledger
	Accounts *account.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"head_time":  d.Ledger.Now().Unix(),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, account.NewHandler(d.Accounts), d.Cfg.AllowRegistration)
	RegisterTransactionRoutes(api, d.Ledger, middleware.PushRateLimit(d.Cache, d.Cfg.PushRateLimit, d.Logger), d.Logger)
	RegisterTableRoutes(api, d.Ledger)
}
