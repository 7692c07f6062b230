package handlers

import (
	"errors"

	"billvend/internal/services/bill"
	"billvend/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type BillHandler struct {
	billService bill.Service
}

func NewBillHandler(billService bill.Service) *BillHandler {
	return &BillHandler{billService: billService}
}

// Pay initiates a bill payment. The response carries a PROCESSING status;
// the final outcome is resolved asynchronously and queried by id.
func (h *BillHandler) Pay(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var req bill.PayBillRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}

	result, err := h.billService.PayBill(c.Context(), claims.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, bill.ErrInvalidAmount),
			errors.Is(err, bill.ErrUnsupportedBillType),
			errors.Is(err, bill.ErrMissingAccountNumber),
			errors.Is(err, bill.ErrMissingMeterNumber):
			return utils.BadRequest(c, err.Error())
		case errors.Is(err, bill.ErrInsufficientFunds):
			return utils.UnprocessableEntity(c, "insufficient funds")
		case errors.Is(err, bill.ErrWalletNotFound):
			return utils.NotFound(c, "wallet not found")
		default:
			return utils.InternalError(c, "failed to initiate payment")
		}
	}

	return utils.Accepted(c, result)
}
