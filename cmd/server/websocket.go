package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ws "github.com/jasujm/bridgeapp/internal/server/websocket"
)

// handleGameEvents upgrades the connection and streams one game's events
// to the browser. The events come off the Redis channel the relay
// publishes to, so a connection is served the full stream even when the
// demultiplexer subscription lives on another frontend replica.
func (s *Server) handleGameEvents(c *gin.Context) {
	token := c.Query("token")
	userID, err := s.authService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	gameID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game id"})
		return
	}

	conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade error:", err)
		return
	}

	client := ws.NewClient(userID, gameID.String(), conn)

	// Subscribe before acknowledging anything so no event published after
	// this point is missed.
	pubsub := s.cache.SubscribeGameEvents(context.Background(), gameID.String())
	s.relay.Acquire(gameID)

	done := make(chan struct{})
	go func() {
		defer close(client.Send)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				client.Deliver([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	go client.WritePump()
	go client.ReadPump(func(c *ws.Client) {
		close(done)
		pubsub.Close()
		s.relay.Release(gameID)
		log.Printf("[WS] user %s disconnected from game %s", c.UserID, c.GameID)
	})

	log.Printf("[WS] user %s watching game %s", userID, gameID)
}
