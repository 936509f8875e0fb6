package auth

import (
	"github.com/gofiber/fiber/v2"
)

// Handler serves the login endpoint.
type Handler struct {
	auth *Authenticator
}

func NewHandler(a *Authenticator) *Handler {
	return &Handler{auth: a}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Passcode string `json:"passcode"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Passcode == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Passcode is required")
	}

	token, err := h.auth.Login(body.Passcode)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid passcode")
	}
	return c.JSON(fiber.Map{"data": token})
}
