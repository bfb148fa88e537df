package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/attendance"
)

// MemberGuards are the middlewares in front of member endpoints.
type MemberGuards struct {
	Presence    fiber.Handler
	Idempotency fiber.Handler
	SignInLimit fiber.Handler
}

// RegisterMemberRoutes mounts the member ledger endpoints behind the presence
// gate. The gate is attached per route: an empty-prefix group would install it
// as Use middleware on the whole api prefix, operator routes included.
func RegisterMemberRoutes(api fiber.Router, h *attendance.Handler, g MemberGuards) {
	api.Post("/register", g.Presence, g.SignInLimit, g.Idempotency, h.Register)
	api.Post("/signin", g.Presence, g.SignInLimit, g.Idempotency, h.SignIn)
	api.Post("/markOut", g.Presence, g.Idempotency, h.MarkOut)
	api.Post("/status", g.Presence, h.Status)
	api.Post("/history", g.Presence, h.History)
}
