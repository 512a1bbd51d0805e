package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sqldesk/internal/handlers"
)

func registerSnapshotRoutes(api *gin.RouterGroup, handler *handlers.SnapshotHandler) {
	snapshots := api.Group("/snapshots")
	{
		snapshots.GET("", handler.List)
		snapshots.POST("", handler.Create)
		snapshots.GET("/:id", handler.Download)
	}
}
