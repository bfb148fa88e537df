package operator

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/logging"
)

// LocalsKey holds the verified Claims on the request context.
const LocalsKey = "operator"

// Handler exposes the operator login endpoint.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logging.Component(logger, "operator")}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login exchanges operator credentials for a bearer token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	tok, err := h.svc.Login(c.UserContext(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrDisabled):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		h.logger.Warn("operator login rejected", slog.String("ip", c.IP()))
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case err != nil:
		h.logger.Error("operator login failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Internal server error")
	}
	expiresIn := int64(tok.ExpiresAt.Sub(h.svc.clock.Now()).Seconds())
	return c.Status(http.StatusOK).JSON(loginResponse{AccessToken: tok.AccessToken, TokenType: "Bearer", ExpiresIn: expiresIn})
}

// RequireOperator rejects requests without a valid operator bearer token.
func RequireOperator(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := svc.Verify(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(LocalsKey, claims)
		return c.Next()
	}
}

// FromLocals returns the operator claims set by RequireOperator.
func FromLocals(c *fiber.Ctx) (Claims, bool) {
	claims, ok := c.Locals(LocalsKey).(Claims)
	return claims, ok
}
