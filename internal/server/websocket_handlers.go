package server

import (
	"log/slog"

	"pulsefeed/internal/middleware"
	"pulsefeed/internal/models"
	"pulsefeed/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketUpgrade rejects plain HTTP requests to the broadcast endpoint.
// Subscribing is open to anyone; a valid ?token= only tags the connection
// with its user for logging.
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if token := c.Query("token"); token != "" {
		if identity, err := s.verifier.VerifyToken(token); err == nil {
			c.Locals(middleware.LocalUserID, identity.UserID)
		}
	}
	return c.Next()
}

// BroadcastHandler attaches a websocket subscriber to the hub.
// @Summary Subscribe to broadcasts
// @Description Upgrades to a websocket. ?topics=a,b selects the initial topics (default "posts").
// @Tags realtime
// @Param topics query string false "Comma separated topics"
// @Success 101 {string} string "Switching Protocols"
// @Failure 426 {object} models.ErrorResponse
// @Router /ws [get]
func (s *Server) BroadcastHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(middleware.LocalUserID).(uint)
		topics := notifications.ParseTopics(conn.Query("topics"), models.TopicPosts)

		client, err := s.hub.Register(conn, userID, topics...)
		if err != nil {
			middleware.Logger.Warn("websocket registration rejected",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()))
			if frame, encErr := notifications.EncodeFrame("error", map[string]string{"reason": err.Error()}); encErr == nil {
				_ = conn.WriteMessage(websocket.TextMessage, frame)
			}
			_ = conn.Close()
			return
		}

		middleware.Logger.Debug("websocket subscriber connected",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("topics", topics))

		client.IncomingHandler = s.hub.HandleClientMessage

		go client.WritePump()
		client.ReadPump()
	}, websocket.Config{
		Origins: []string{"*"},
	})
}
