package admission

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/proximity"
)

// LocalsKey is where RequirePresence stores the decision for downstream handlers.
const LocalsKey = "admission_decision"

// Response is the wire form of a decision.
type Response struct {
	Connected      bool     `json:"connected"`
	Method         string   `json:"method"`
	Status         string   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
	Distance       *float64 `json:"distance,omitempty"`
	MaxRadius      *float64 `json:"maxRadius,omitempty"`
	IP             string   `json:"ip,omitempty"`
	RequiredPrefix string   `json:"requiredPrefix,omitempty"`
	Timestamp      int64    `json:"timestamp"`
}

// ToResponse renders d for clients.
func ToResponse(d Decision) Response {
	r := Response{
		Connected: d.Present,
		Method:    string(d.Method),
		Status:    string(d.Status),
		Reason:    d.Reason,
		Timestamp: d.EvaluatedAt.UnixMilli(),
	}
	switch d.Method {
	case MethodGeolocation:
		dist := d.RoundedDistance()
		radius := d.RadiusMeters
		r.Distance = &dist
		r.MaxRadius = &radius
	case MethodIP:
		r.IP = d.IP
		r.RequiredPrefix = d.RequiredPrefix
	}
	return r
}

// Handler exposes the admission check endpoint.
type Handler struct {
	gate       *Gate
	trustProxy bool
}

// NewHandler constructs an admission HTTP handler.
func NewHandler(gate *Gate, trustProxy bool) *Handler {
	return &Handler{gate: gate, trustProxy: trustProxy}
}

// Check evaluates the caller. It always answers 200; the body carries the verdict.
func (h *Handler) Check(c *fiber.Ctx) error {
	d := h.gate.Evaluate(SignalFromRequest(c, h.trustProxy))
	noCache(c)
	return c.Status(http.StatusOK).JSON(ToResponse(d))
}

// RequirePresence rejects member requests whose client is not at the facility.
// Operator routes must not be mounted behind it.
func RequirePresence(gate *Gate, trustProxy bool, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := gate.Evaluate(SignalFromRequest(c, trustProxy))
		if !d.Present {
			if logger != nil {
				logger.Info("admission denied",
					slog.String("path", c.Path()),
					slog.String("status", string(d.Status)),
					slog.String("reason", d.Reason),
				)
			}
			noCache(c)
			return c.Status(http.StatusForbidden).JSON(fiber.Map{
				"message":   "You can only use this service while at the facility",
				"admission": ToResponse(d),
			})
		}
		c.Locals(LocalsKey, d)
		return c.Next()
	}
}

// SignalFromRequest collects coordinates from the lat/lon query parameters and
// the request's network origin. Malformed coordinates are dropped so the gate
// falls back to the network origin.
func SignalFromRequest(c *fiber.Ctx, trustProxy bool) Signal {
	sig := Signal{ClientIP: ClientIP(c, trustProxy)}
	if coords, ok := proximity.ParseCoordinates(c.Query("lat"), c.Query("lon")); ok {
		sig.Coordinates = &coords
	}
	return sig
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, when proxy
// headers are trusted, else the socket peer.
func ClientIP(c *fiber.Ctx, trustProxy bool) string {
	if trustProxy {
		if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return c.IP()
}

func noCache(c *fiber.Ctx) {
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
}
