package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/chaosfeed/api/handlers"
	"github.com/NethermindEth/chaosfeed/communication"
	"github.com/NethermindEth/chaosfeed/insights"
)

// SetupRoutes initializes all API endpoints
func SetupRoutes(router *gin.Engine, h *handlers.Handler, ins *insights.Handler, hub *communication.Hub) {
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	if hub != nil {
		router.GET("/ws", handlers.HandleWebSocket(hub))
	}

	api := router.Group("/api")
	{
		api.GET("/state", h.GetState)

		api.GET("/agents", h.ListAgents)
		api.POST("/agents", h.CreateAgent)
		api.POST("/agents/defaults", h.LoadDefaultAgents)
		api.DELETE("/agents/:id", h.DeleteAgent)

		api.PUT("/topic", h.SetTopic)
		api.POST("/simulation/start", h.StartSimulation)
		api.POST("/simulation/stop", h.StopSimulation)

		api.GET("/feed", h.GetFeed)
		api.GET("/logs", h.GetLogs)
		api.GET("/notifications", h.GetNotifications)
		api.GET("/iterations/export", h.ExportIterations)

		if ins != nil {
			api.GET("/insights", ins.GetInsights)
			api.GET("/insights/analysis", ins.GetDiscussionAnalysis)
		}
	}
}
