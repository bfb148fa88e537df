package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds a readiness endpoint covering every configured backend.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{"store": d.Cfg.StoreDriver}
		healthy := true
		check := func(name string, ping func(context.Context) error) {
			if err := ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}
		if d.DB != nil {
			check("postgres", d.DB.Ping)
		}
		if d.SQLite != nil {
			check("sqlite", d.SQLite.PingContext)
		}
		if d.Cache != nil {
			check("redis", func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() })
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
