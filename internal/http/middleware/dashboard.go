package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// DashboardPassword guards the stats endpoints with the shared secret passed
// in the password query parameter. An empty configured secret denies every
// request.
func DashboardPassword(configured string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if configured == "" {
			logger.Warn("Dashboard password not configured, denying stats request")
			return unauthorized(c)
		}

		provided := c.Query("password")
		if provided == "" || !PasswordMatches(configured, provided) {
			logger.Debug("Rejected stats request", slog.String("ip", c.IP()))
			return unauthorized(c)
		}

		return c.Next()
	}
}

// PasswordMatches compares provided against the configured secret. A bcrypt
// hash is verified as such, anything else must match exactly.
func PasswordMatches(configured, provided string) bool {
	if isBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(provided)) == 1
}

func isBcryptHash(value string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Invalid password",
		"code":  "UNAUTHORIZED",
	})
}
