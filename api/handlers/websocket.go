package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/chaosfeed/communication"
)

// HandleWebSocket attaches the connection to the hub, which sends a state
// snapshot first and then every store event.
func HandleWebSocket(hub *communication.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	}
}
