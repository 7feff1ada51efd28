package server

import (
	"encoding/json"
	"time"

	"sccompanion/internal/middleware"
	"sccompanion/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// upgradeOnly lets websocket handshakes through and rejects plain HTTP.
func (s *Server) upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.Status(fiber.StatusUpgradeRequired).JSON(models.ErrorResponse{
		Error: "WebSocket upgrade required",
		Code:  models.CodeValidation,
	})
}

// EventsWebsocket handles GET /api/ws/events. The caller receives their
// social notifications as JSON text frames; nothing is read from the
// client except control frames.
func (s *Server) EventsWebsocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals(localUserID).(uint)
		if !ok || s.hub == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"realtime events unavailable"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration refused", "user_id", uid, "error", err)
			msg, _ := json.Marshal(fiber.Map{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		hello, _ := json.Marshal(fiber.Map{
			"type":      "connected",
			"payload":   fiber.Map{"userId": uid},
			"createdAt": time.Now().UTC(),
		})
		client.TrySend(hello)

		go client.WritePump()
		client.ReadPump()
	})
}
