package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/FrederikMaler/LicenseBay/internal/pkg/database"
)

// DatabaseHealth halts requests while the database is unreachable so a
// buyer is stopped before payment capture, not after it.
func DatabaseHealth(c *fiber.Ctx) error {
	if err := database.Ping(); err != nil {
		log.Printf("database health check failed: %v", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "Service temporarily unavailable")
	}
	return c.Next()
}
