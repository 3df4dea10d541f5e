package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/chat"
	"github.com/signal-ai/backend/pkg/logger"
)

// ChatHandler serves the assistant endpoints.
type ChatHandler struct {
	engine *chat.Engine
}

func NewChatHandler(engine *chat.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// Send answers one question with retrieved context.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp, err := h.engine.Send(c.UserContext(), req)
	if errors.Is(err, chat.ErrInvalidMessage) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.Error("Chat request failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate answer"})
	}

	return c.JSON(resp)
}

func (h *ChatHandler) History(c *fiber.Ctx) error {
	turns, err := h.engine.History(c.UserContext(), c.Params("id"))
	if errors.Is(err, chat.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load history"})
	}
	return c.JSON(fiber.Map{"session_id": c.Params("id"), "turns": turns})
}

func (h *ChatHandler) Clear(c *fiber.Ctx) error {
	if err := h.engine.Clear(c.UserContext(), c.Params("id")); err != nil {
		logger.Error("Failed to clear session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to clear session"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type summarizeRequest struct {
	IDs []string `json:"ids"`
}

// Summarize produces a short model summary of the given feedback items.
func (h *ChatHandler) Summarize(c *fiber.Ctx) error {
	var req summarizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids must not be empty"})
	}

	summary, err := h.engine.Summarize(c.UserContext(), req.IDs)
	if err != nil {
		logger.Error("Summarize failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to summarize feedback"})
	}

	return c.JSON(fiber.Map{"summary": summary})
}
