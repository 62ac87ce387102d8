package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/coa_auth/internal/coa"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// TokenVerifier resolves an access token to the wallet it was issued to.
type TokenVerifier interface {
	Verify(token string) (wallet.Address, error)
}

// WalletAuth validates bearer tokens and stores the caller wallet in locals.
func WalletAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		caller, err := verifier.Verify(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(coa.CallerLocal, caller)
		return c.Next()
	}
}
