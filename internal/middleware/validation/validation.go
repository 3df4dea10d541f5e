package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const maxBodyBytes = 64 * 1024

// RequireJSON rejects mutating requests that do not carry a JSON body of
// reasonable size. Feedback content tops out at 10k characters, so 64KiB
// leaves room for metadata without letting arbitrary payloads through.
func RequireJSON() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPatch, fiber.MethodPut:
		default:
			return c.Next()
		}

		if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "content type must be application/json",
			})
		}
		if len(c.Body()) > maxBodyBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "request body too large",
			})
		}
		return c.Next()
	}
}
