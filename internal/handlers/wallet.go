package handlers

import (
	"errors"

	"billvend/internal/services/wallet"
	"billvend/internal/utils"
	"billvend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// GetBalance returns the authenticated user's wallet balance.
func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	balance, err := h.walletService.GetBalance(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return utils.NotFound(c, "wallet not found")
		}
		return utils.InternalError(c, "failed to get balance")
	}

	return utils.Success(c, fiber.Map{
		"user_id": claims.UserID,
		"balance": balance,
	})
}

// Fund credits the authenticated user's wallet directly.
func (h *WalletHandler) Fund(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}

	v := validation.New()
	v.Positive("amount", input.Amount)
	if !v.Valid() {
		return utils.Respond(c, fiber.StatusBadRequest, fiber.Map{"errors": v.Errors})
	}

	w, err := h.walletService.Fund(c.Context(), claims.UserID, input.Amount)
	if err != nil {
		return utils.InternalError(c, "failed to fund wallet")
	}

	return utils.Success(c, fiber.Map{
		"balance": w.Balance,
		"amount":  input.Amount,
	})
}

// FundFromCard charges a card and credits the wallet with the proceeds.
func (h *WalletHandler) FundFromCard(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		Amount float64          `json:"amount"`
		Card   wallet.CardInput `json:"card"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}

	v := validation.New()
	v.Positive("amount", input.Amount)
	v.Required("card.card_number", input.Card.CardNumber)
	if !v.Valid() {
		return utils.Respond(c, fiber.StatusBadRequest, fiber.Map{"errors": v.Errors})
	}

	w, err := h.walletService.FundFromCard(c.Context(), claims.UserID, input.Amount, input.Card)
	if err != nil {
		if errors.Is(err, wallet.ErrCardDeclined) {
			return utils.UnprocessableEntity(c, "card was declined")
		}
		return utils.InternalError(c, "failed to fund wallet")
	}

	return utils.Success(c, fiber.Map{
		"balance": w.Balance,
		"amount":  input.Amount,
	})
}
