package v1

import (
	"github.com/gin-gonic/gin"

	"isuite-server/chat-api/internal/interfaces/httpserver/handlers"
)

func registerChatRoutes(router gin.IRouter, sessions *handlers.SessionHandler, chat *handlers.ChatHandler) {
	group := router.Group("/chat/sessions")
	group.POST("", sessions.Create)
	group.GET("", sessions.List)
	group.GET("/:session_id", sessions.Get)
	group.PATCH("/:session_id", sessions.UpdateTitle)
	group.DELETE("/:session_id", sessions.Delete)
	group.POST("/:session_id/activate", sessions.Activate)
	group.POST("/:session_id/turns", chat.SendTurn)
}
