package coa

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/coa_auth/internal/identity"
	"github.com/congo-pay/coa_auth/internal/index"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

// CallerLocal is the fiber locals key holding the authenticated wallet.
const CallerLocal = "wallet"

// Handler exposes registry endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a registry handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type shardRequest struct {
	ShardID *uint16 `json:"shard_id"`
}

type addWalletRequest struct {
	Wallet  wallet.Address `json:"wallet"`
	ShardID *uint16        `json:"shard_id"`
}

type transferRequest struct {
	NewPrimary wallet.Address `json:"new_primary"`
	ShardID    *uint16        `json:"shard_id"`
}

type accountResponse struct {
	identity.Account
	State identity.State `json:"state"`
}

// Initialize creates the registry with the caller as owner.
func (h *Handler) Initialize(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	reg, err := h.service.Initialize(c.UserContext(), caller)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(reg)
}

// Registry returns the registry counters.
func (h *Handler) Registry(c *fiber.Ctx) error {
	reg, err := h.service.Registry(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(reg)
}

// Onboard creates an identity for the caller.
func (h *Handler) Onboard(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req shardRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	acc, err := h.service.Onboard(c.UserContext(), OnboardInput{Caller: caller, ShardID: req.ShardID})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{Account: acc, State: acc.State()})
}

// AddAuthorizedWallet binds a new wallet to the caller's identity.
func (h *Handler) AddAuthorizedWallet(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req addWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Wallet.IsZero() {
		return fiber.NewError(http.StatusBadRequest, "wallet is required")
	}
	acc, err := h.service.AddAuthorizedWallet(c.UserContext(), AddWalletInput{
		Caller:    caller,
		NewWallet: req.Wallet,
		ShardID:   req.ShardID,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{Account: acc, State: acc.State()})
}

// RemoveAuthorizedWallet unbinds the wallet named in the path.
func (h *Handler) RemoveAuthorizedWallet(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	target, err := walletParam(c, "wallet")
	if err != nil {
		return err
	}
	shardID, err := shardQuery(c)
	if err != nil {
		return err
	}
	err = h.service.RemoveAuthorizedWallet(c.UserContext(), RemoveWalletInput{Caller: caller, Target: target, ShardID: shardID})
	if err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// TransferPrimary evicts the caller and promotes new_primary.
func (h *Handler) TransferPrimary(c *fiber.Ctx) error {
	return h.transfer(c, h.service.TransferPrimaryOwnership)
}

// SetPrimary promotes new_primary and keeps the caller as an authorized wallet.
func (h *Handler) SetPrimary(c *fiber.Ctx) error {
	return h.transfer(c, h.service.SetNewPrimaryOwnership)
}

func (h *Handler) transfer(c *fiber.Ctx, op func(ctx context.Context, in TransferInput) error) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.NewPrimary.IsZero() {
		return fiber.NewError(http.StatusBadRequest, "new_primary is required")
	}
	if err := op(c.UserContext(), TransferInput{Caller: caller, NewPrimary: req.NewPrimary, ShardID: req.ShardID}); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"primary_wallet": req.NewPrimary})
}

// Leave unbinds the calling wallet from its identity.
func (h *Handler) Leave(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	var req shardRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	if err := h.service.LeaveCoaAccount(c.UserContext(), LeaveInput{Caller: caller, ShardID: req.ShardID}); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Dissolve unbinds every wallet of the caller's identity.
func (h *Handler) Dissolve(c *fiber.Ctx) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	released, err := h.service.Dissolve(c.UserContext(), caller)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"released": released})
}

// Account returns the record of the wallet in the path.
func (h *Handler) Account(c *fiber.Ctx) error {
	w, err := walletParam(c, "wallet")
	if err != nil {
		return err
	}
	acc, err := h.service.Account(c.UserContext(), w)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(accountResponse{Account: acc, State: acc.State()})
}

// Identity returns the member list of an identity.
func (h *Handler) Identity(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("userId"), 10, 64)
	if err != nil || userID == 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	g, err := h.service.Identity(c.UserContext(), userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(g)
}

// Lookup resolves a wallet to its identity id through the index.
func (h *Handler) Lookup(c *fiber.Ctx) error {
	w, err := walletParam(c, "wallet")
	if err != nil {
		return err
	}
	shardID, err := shardQuery(c)
	if err != nil {
		return err
	}
	userID, err := h.service.Lookup(c.UserContext(), w, shardID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"wallet": w, "user_id": userID})
}

// Shard returns one index shard.
func (h *Handler) Shard(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("shardId"), 10, 16)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid shard id")
	}
	sh, err := h.service.Shard(c.UserContext(), uint16(id))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"id":       sh.ID,
		"len":      sh.Len(),
		"capacity": index.MaxItems,
		"entries":  sh.Entries,
	})
}

func callerOf(c *fiber.Ctx) (wallet.Address, error) {
	caller, ok := c.Locals(CallerLocal).(wallet.Address)
	if !ok || caller.IsZero() {
		return wallet.Address{}, fiber.NewError(http.StatusUnauthorized, "missing caller wallet")
	}
	return caller, nil
}

func walletParam(c *fiber.Ctx, name string) (wallet.Address, error) {
	w, err := wallet.ParseAddress(c.Params(name))
	if err != nil {
		return wallet.Address{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return w, nil
}

func shardQuery(c *fiber.Ctx) (*uint16, error) {
	raw := c.Query("shard_id")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "invalid shard_id")
	}
	id := uint16(v)
	return &id, nil
}

func parseOptionalBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, "unauthorized")
	case errors.Is(err, identity.ErrAlreadyOnboarded):
		return fiber.NewError(http.StatusConflict, "wallet already onboarded")
	case errors.Is(err, identity.ErrAlreadyInitialized):
		return fiber.NewError(http.StatusConflict, "registry already initialized")
	case errors.Is(err, identity.ErrSameAccount):
		return fiber.NewError(http.StatusBadRequest, "caller and target are the same wallet")
	case errors.Is(err, identity.ErrGroupMismatch):
		return fiber.NewError(http.StatusConflict, "wallet belongs to another identity")
	case errors.Is(err, identity.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, index.ErrShardFull):
		return fiber.NewError(http.StatusInsufficientStorage, "shard is full")
	case errors.Is(err, index.ErrInvalidShardID):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotInitialized):
		return fiber.NewError(http.StatusPreconditionFailed, "registry not initialized")
	case errors.Is(err, index.ErrModeMismatch):
		return fiber.NewError(http.StatusPreconditionFailed, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
