package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/coa_auth/internal/coa"
)

// RegisterCoaRoutes wires registry endpoints. Reads are public; every state
// change runs behind protect.
func RegisterCoaRoutes(r fiber.Router, h *coa.Handler, protect ...fiber.Handler) {
	r.Get("/registry", h.Registry)
	r.Get("/accounts/:wallet", h.Account)
	r.Get("/identities/:userId", h.Identity)
	r.Get("/lookup/:wallet", h.Lookup)
	r.Get("/shards/:shardId", h.Shard)

	protected := r.Group("", protect...)
	protected.Post("/registry/initialize", h.Initialize)
	protected.Post("/onboard", h.Onboard)
	protected.Post("/authorized-wallets", h.AddAuthorizedWallet)
	protected.Delete("/authorized-wallets/:wallet", h.RemoveAuthorizedWallet)
	protected.Post("/primary/transfer", h.TransferPrimary)
	protected.Post("/primary/set", h.SetPrimary)
	protected.Post("/leave", h.Leave)
	protected.Post("/dissolve", h.Dissolve)
}
