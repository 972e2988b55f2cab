package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

const cronSubject = "cron"

type AuthMiddleware struct {
	secretKey  string
	cronSecret string
}

func NewAuthMiddleware(secretKey, cronSecret string) *AuthMiddleware {
	return &AuthMiddleware{secretKey: secretKey, cronSecret: cronSecret}
}

// AuthMiddleware accepts "Authorization: Bearer <token>" where the token is either the cron
// secret or a JWT signed with the secret key.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		if m.cronSecret != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(m.cronSecret)) == 1 {
			c.Locals("subject", cronSubject)
			return c.Next()
		}

		if m.secretKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token auth is not configured",
			})
		}
		claims, err := utils.ValidateToken(m.secretKey, tokenString)
		if err != nil {
			slog.Info("token validation failed", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("subject", claims.Name)
		return c.Next()
	}
}
