package v1

import (
	"github.com/gin-gonic/gin"

	"isuite-server/chat-api/internal/interfaces/httpserver/handlers"
)

func registerConnectionRoutes(router gin.IRouter, handler *handlers.ConnectionHandler) {
	group := router.Group("/connections")
	group.GET("", handler.List)
	group.POST("", handler.Initiate)
	group.DELETE("/:connection_id", handler.Delete)
}
