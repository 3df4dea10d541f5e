package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/signal-ai/backend/internal/api/handlers"
	"github.com/signal-ai/backend/internal/metrics"
	"github.com/signal-ai/backend/internal/middleware/ratelimit"
	"github.com/signal-ai/backend/internal/middleware/validation"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Feedback  *handlers.FeedbackHandler
	Chat      *handlers.ChatHandler
	Search    *handlers.SearchHandler
	WebSocket *handlers.WebSocketHandler
}

// SetupRoutes mounts the API surface on the app.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Use(requestMetrics())

	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})
	app.Get("/metrics", metrics.MetricsHandler())

	v1 := app.Group("/api/v1",
		ratelimit.New(60, time.Minute),
		validation.RequireJSON(),
	)

	feedback := v1.Group("/feedback")
	feedback.Post("/", h.Feedback.Create)
	feedback.Get("/:id", h.Feedback.Get)
	feedback.Patch("/:id", h.Feedback.Update)
	feedback.Delete("/:id", h.Feedback.Delete)
	feedback.Get("/:id/similar", h.Feedback.Similar)

	searchGroup := v1.Group("/search")
	searchGroup.Post("/semantic", h.Search.Semantic)
	searchGroup.Post("/cluster", h.Search.Cluster)

	chatGroup := v1.Group("/chat")
	chatGroup.Post("/", h.Chat.Send)
	chatGroup.Get("/history/:id", h.Chat.History)
	chatGroup.Delete("/history/:id", h.Chat.Clear)
	chatGroup.Post("/summarize", h.Chat.Summarize)

	chatGroup.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	chatGroup.Get("/ws", websocket.New(h.WebSocket.Handle))
}

func requestMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		metrics.HTTPRequests.WithLabelValues(
			c.Method(),
			c.Route().Path,
			strconv.Itoa(c.Response().StatusCode()),
		).Inc()
		return err
	}
}
