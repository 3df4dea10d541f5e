package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/chat"
	"github.com/signal-ai/backend/pkg/logger"
)

const wsRequestTimeout = 60 * time.Second

// WebSocketHandler runs interactive chat over a single connection. Each
// inbound frame is one question; the session id from the first answer is
// reused so the whole connection shares history.
type WebSocketHandler struct {
	engine *chat.Engine
}

func NewWebSocketHandler(engine *chat.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

type wsError struct {
	Error string `json:"error"`
}

func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	sessionID := ""

	for {
		var req chat.Request
		if err := c.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		ctx, cancel := context.WithTimeout(context.Background(), wsRequestTimeout)
		resp, err := h.engine.Send(ctx, req)
		cancel()

		if err != nil {
			msg := "failed to generate answer"
			if errors.Is(err, chat.ErrInvalidMessage) {
				msg = err.Error()
			} else {
				logger.Error("WebSocket chat failed", zap.Error(err))
			}
			if err := c.WriteJSON(wsError{Error: msg}); err != nil {
				return
			}
			continue
		}

		sessionID = resp.SessionID
		if err := c.WriteJSON(resp); err != nil {
			logger.Warn("WebSocket write failed", zap.Error(err))
			return
		}
	}
}
