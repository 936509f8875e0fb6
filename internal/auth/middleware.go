package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localsSubject = "subject"

// Middleware rejects requests without a valid bearer token. It lets every
// request through when no passcode is configured.
func Middleware(a *Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !a.Enabled() {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing auth token")
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid auth header format")
		}

		claims, err := a.Parse(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}
		c.Locals(localsSubject, claims.Subject)
		return c.Next()
	}
}

// GetSubject returns the authenticated subject, or "" when auth is disabled.
func GetSubject(c *fiber.Ctx) string {
	s, _ := c.Locals(localsSubject).(string)
	return s
}
