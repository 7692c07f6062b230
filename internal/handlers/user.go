package handlers

import (
	"errors"

	"billvend/internal/services/user"
	"billvend/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	userService user.Service
}

func NewUserHandler(userService user.Service) *UserHandler {
	return &UserHandler{userService: userService}
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	u, err := h.userService.GetByID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return utils.NotFound(c, "user not found")
		}
		return utils.InternalError(c, "failed to get user")
	}

	return utils.Success(c, fiber.Map{"user": u})
}

// UpdateMe updates the authenticated user's profile name.
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request body")
	}
	if input.Name == "" {
		return utils.BadRequest(c, "name is required")
	}

	u, err := h.userService.UpdateName(c.Context(), claims.UserID, input.Name)
	if err != nil {
		return utils.InternalError(c, "failed to update user")
	}

	return utils.Success(c, fiber.Map{"user": u})
}
