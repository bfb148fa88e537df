package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/attendance"
	"github.com/rollcall/rollcall/internal/operator"
)

// OperatorGuards are the middlewares in front of operator endpoints.
type OperatorGuards struct {
	Auth        fiber.Handler
	Idempotency fiber.Handler
	LoginLimit  fiber.Handler
}

// RegisterOperatorRoutes mounts the operator endpoints. They are never gated
// by presence so the operator can work off-site.
func RegisterOperatorRoutes(api fiber.Router, ledger *attendance.Handler, login *operator.Handler, g OperatorGuards) {
	op := api.Group("/operator")
	op.Post("/login", g.LoginLimit, login.Login)
	op.Post("/forceOut", g.Auth, g.Idempotency, ledger.ForceOut)
	op.Get("/today", g.Auth, ledger.Today)
}
