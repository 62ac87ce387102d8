package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/mr-tron/base58"

	"github.com/congo-pay/coa_auth/internal/wallet"
)

// Handler exposes the wallet login endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Wallet    wallet.Address `json:"wallet"`
	Timestamp int64          `json:"timestamp"`
	Signature string         `json:"signature"`
}

type loginResponse struct {
	Wallet wallet.Address `json:"wallet"`
	Token
}

// Challenge returns the message to sign for Login.
func (h *Handler) Challenge(c *fiber.Ctx) error {
	return c.JSON(h.svc.Challenge())
}

// Login verifies a signed challenge and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Wallet.IsZero() || req.Signature == "" {
		return fiber.NewError(http.StatusBadRequest, "wallet and signature are required")
	}
	sig, err := base58.Decode(req.Signature)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "signature must be base58")
	}

	token, err := h.svc.Login(LoginInput{Wallet: req.Wallet, Timestamp: req.Timestamp, Signature: sig})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrStaleTimestamp):
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(loginResponse{Wallet: req.Wallet, Token: token})
}
