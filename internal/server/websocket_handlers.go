package server

import (
	"errors"

	"chirp/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler upgrades GET /ws into a notification stream for the
// authenticated user. Frames are JSON events pushed by the hub; anything the
// client sends only refreshes presence.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(string)
		if userID == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			code := websocket.CloseInternalServerErr
			if errors.Is(err, notifications.ErrServerFull) || errors.Is(err, notifications.ErrUserFull) {
				code = websocket.CloseTryAgainLater
			}
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
