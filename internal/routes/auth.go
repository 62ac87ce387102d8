package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/coa_auth/internal/auth"
)

// RegisterAuthRoutes wires wallet login. Only the login call is rate limited.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Get("/challenge", h.Challenge)
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
}
