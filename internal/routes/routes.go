package routes

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rollcall/rollcall/internal/admission"
	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/config"
	"github.com/rollcall/rollcall/internal/logging"
	"github.com/rollcall/rollcall/internal/member"
	"github.com/rollcall/rollcall/internal/metrics"
	"github.com/rollcall/rollcall/internal/middleware"
	"github.com/rollcall/rollcall/internal/notification"
	"github.com/rollcall/rollcall/internal/operator"
	"github.com/rollcall/rollcall/internal/proximity"
)

// Deps aggregates shared dependencies required to wire routes. Exactly one of
// DB and SQLite is set unless the memory store is configured.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	SQLite  *sql.DB
	Cache   *redis.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clock.Clock
	// Discover overrides host interface discovery for the admission gate.
	Discover proximity.InterfaceDiscoverer
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Discover == nil {
		d.Discover = proximity.HostInterfaces{}
	}

	store, members, err := buildStores(d)
	if err != nil {
		return err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log for local runs: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
			Output:     os.Stdout,
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	memberSvc := member.NewService(members, d.Clock)
	ledgerSvc := attendance.NewService(store, memberSvc, d.Clock, notification.NewLoggerNotifier(d.Logger), d.Metrics, d.Logger)
	ledgerHandler := attendance.NewHandler(ledgerSvc, d.Logger)

	gate := admission.NewGate(d.Cfg.Facility, d.Discover, d.Clock, d.Metrics, d.Logger)

	operatorSvc, err := operator.NewService(d.Cfg.Operator, d.Clock)
	if err != nil {
		return err
	}
	if !operatorSvc.Enabled() {
		d.Logger.Warn("operator login disabled: set OPERATOR_PASSWORD or OPERATOR_PASSWORD_HASH")
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	api.Get("/admission", admission.NewHandler(gate, d.Cfg.TrustProxyHeaders).Check)

	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	RegisterMemberRoutes(api, ledgerHandler, MemberGuards{
		Presence:    presenceGuard(d, gate),
		Idempotency: idempotent,
		SignInLimit: middleware.RateLimit(d.Cache, "signin", d.Cfg.SignInRatePerMinute, middleware.PhoneOrIP(d.Cfg.TrustProxyHeaders), d.Logger),
	})
	RegisterOperatorRoutes(api, ledgerHandler, operator.NewHandler(operatorSvc, d.Logger), OperatorGuards{
		Auth:        operator.RequireOperator(operatorSvc),
		Idempotency: idempotent,
		LoginLimit:  middleware.RateLimit(d.Cache, "operator_login", 5, middleware.ByIP(d.Cfg.TrustProxyHeaders), d.Logger),
	})
	return nil
}

func buildStores(d Deps) (attendance.Store, member.Repository, error) {
	switch d.Cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if d.DB == nil {
			return nil, nil, fmt.Errorf("postgres pool is required for STORE_DRIVER=postgres")
		}
		return attendance.NewPostgresStore(d.DB), member.NewPostgresRepository(d.DB), nil
	case config.StoreDriverSQLite:
		if d.SQLite == nil {
			return nil, nil, fmt.Errorf("sqlite handle is required for STORE_DRIVER=sqlite")
		}
		return attendance.NewSQLiteStore(d.SQLite), member.NewSQLiteRepository(d.SQLite), nil
	case config.StoreDriverMemory:
		return attendance.NewMemoryStore(), member.NewMemoryRepository(), nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", d.Cfg.StoreDriver)
	}
}

func presenceGuard(d Deps, gate *admission.Gate) fiber.Handler {
	if !d.Cfg.AdmissionEnforce {
		d.Logger.Warn("admission enforcement disabled; member routes are reachable from anywhere")
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return admission.RequirePresence(gate, d.Cfg.TrustProxyHeaders, d.Logger)
}
