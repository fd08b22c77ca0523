package ws

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/middleware"
)

// HandleWebSocket upgrades an authenticated session to a live channel. Query
// parameters other than the token are the participant's page parameters.
func HandleWebSocket(ctx context.Context, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := middleware.Claims(c)
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session token required"})
			return
		}

		query := c.Request.URL.Query()
		query.Del("token")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := newClient(hub, conn, claims.SessionID, query.Encode())

		select {
		case hub.register <- client:
		case <-ctx.Done():
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
