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

	"github.com/waleedelsefy/imv-whatsapp-api/internal/config"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/customer"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/ledger"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/logging"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/metrics"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/middleware"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/notification"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/orders"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Events  notification.MessageWriter
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(d.Metrics.Middleware())
	app.Use(middleware.Audit(logging.Component(d.Logger, "http")))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", d.Metrics.Handler())

	// Stores
	var (
		store        ledger.Store
		customerRepo customer.Repository
		orderRepo    orders.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		customerRepo = customer.NewPostgresRepository(d.DB)
		orderRepo = orders.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("no database configured, using in-memory stores")
		store = ledger.NewInMemory()
		customerRepo = customer.NewMemoryRepository()
		orderRepo = orders.NewMemoryRepository()
	}

	var locker wallet.Locker = wallet.NewLocalLocker()
	if d.Cache != nil {
		locker = wallet.NewRedisLocker(d.Cache, d.Cfg.LockTTL, d.Cfg.LockWait, logging.Component(d.Logger, "lock"))
	}

	var notifier notification.Notifier = notification.NewLoggerNotifier(logging.Component(d.Logger, "notification"))
	if d.Events != nil {
		notifier = notification.NewKafkaNotifier(d.Events, logging.Component(d.Logger, "notification"))
	}

	// Services and handlers
	walletSvc := wallet.NewService(store, customerRepo, wallet.Options{
		Locker:   locker,
		Logger:   logging.Component(d.Logger, "wallet"),
		Metrics:  d.Metrics,
		Notifier: notifier,
		Currency: d.Cfg.Currency,
	})
	customerSvc := customer.NewService(customerRepo, walletSvc, logging.Component(d.Logger, "customer"))
	orderSvc := orders.NewService(orderRepo, walletSvc, customerRepo, locker, notifier, logging.Component(d.Logger, "orders"))

	walletHandler := wallet.NewHandler(walletSvc, customerSvc)
	customerHandler := customer.NewHandler(customerSvc, orderSvc)
	orderHandler := orders.NewHandler(orderSvc, customerSvc, walletSvc.Currency())

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.ServiceAuth(middleware.ServiceAuthConfig{
		TokenHash: d.Cfg.APITokenHash,
		JWTSecret: d.Cfg.JWTSecret,
	}, logging.Component(d.Logger, "auth")))

	// Mutations are rate limited per phone and, with Redis, replayable by Idempotency-Key.
	mutating := []fiber.Handler{middleware.PhoneRateLimit(d.Cache, d.Cfg.RateLimitPerMinute)}
	if d.Cache != nil {
		mutating = append(mutating, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Cfg.IdempotencyRequired, logging.Component(d.Logger, "idempotency")))
	}

	RegisterCustomerRoutes(protected, customerHandler, mutating)
	RegisterOrderRoutes(protected, orderHandler, mutating)
	RegisterWalletRoutes(protected, walletHandler, mutating)

	return nil
}

func chain(guards []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(guards)+1)
	out = append(out, guards...)
	return append(out, h)
}
