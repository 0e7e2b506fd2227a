package stream

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// inbound frames are only read to detect disconnects
const maxInboundFrame = 512

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	r.Get("/ws/:topic", func(c *fiber.Ctx) error {
		if !validTopic(c.Params("topic")) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid topic")
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("topic"))
		defer hub.Unregister(client)
		c.SetReadLimit(maxInboundFrame)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

// validTopic rejects names that would not survive the relay channel format.
func validTopic(topic string) bool {
	return topic != "" && len(topic) <= 128 && !strings.ContainsAny(topic, ":*?[] ")
}
