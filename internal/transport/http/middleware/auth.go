package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/voxscribe/backend/internal/core/ports"
)

// OwnerIDKey is where BearerAuth stores the verified user id in the
// request locals.
const OwnerIDKey = "owner_id"

func BearerAuth(verifier ports.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		ownerID, err := verifier.Verify(c.UserContext(), auth[len(prefix):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals(OwnerIDKey, ownerID)
		return c.Next()
	}
}
