package handlers

import (
	"errors"

	"billvend/internal/services/bill"
	"billvend/internal/services/transaction"
	"billvend/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type TransactionHandler struct {
	billService bill.Service
}

func NewTransactionHandler(billService bill.Service) *TransactionHandler {
	return &TransactionHandler{billService: billService}
}

// Get returns one transaction by its public id. Users only see their own
// records.
func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	id := c.Params("id")
	if id == "" {
		return utils.BadRequest(c, "transaction id is required")
	}

	tx, err := h.billService.GetTransaction(c.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound) {
			return utils.NotFound(c, "transaction not found")
		}
		return utils.InternalError(c, "failed to get transaction")
	}
	if tx.UserID != claims.UserID && claims.Role != "admin" {
		return utils.NotFound(c, "transaction not found")
	}

	return utils.Success(c, fiber.Map{"transaction": tx})
}

// List returns the authenticated user's transactions, newest first.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	txs, err := h.billService.GetUserTransactions(c.Context(), claims.UserID)
	if err != nil {
		return utils.InternalError(c, "failed to list transactions")
	}

	return utils.Success(c, fiber.Map{
		"transactions": txs,
		"count":        len(txs),
	})
}
