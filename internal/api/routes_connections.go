package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sqldesk/internal/handlers"
)

func registerConnectionRoutes(api *gin.RouterGroup, handler *handlers.ConnectionHandler) {
	connections := api.Group("/connections")
	{
		connections.GET("", handler.List)
		connections.POST("", handler.Create)
		connections.GET("/summary", handler.Summary)
		connections.GET("/export", handler.Export)
		connections.POST("/import", handler.Import)
		connections.PUT("/order/:type", handler.Reorder)
		connections.GET("/:id", handler.Get)
		connections.PATCH("/:id", handler.Update)
		connections.DELETE("/:id", handler.Delete)
	}
}
