package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"

  "github.com/yayska-org/yayska-backend/internal/handlers"
  "github.com/yayska-org/yayska-backend/internal/middleware"
)

type RouterConfig struct {
  ChatHandler       *handlers.ChatHandler
  AuthMiddleware    *middleware.AuthMiddleware
  AllowOrigins      []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  //-----------------------------------------
  // Cors Setup
  //-----------------------------------------
  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{"http://localhost:3000"}
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

  //-----------------------------------------
  // Health Routes
  //-----------------------------------------
  router.GET("/healthz", handlers.Healthz)

  //------------------------------------------
  // Protected Routes
  //------------------------------------------
  api := router.Group("/api")
  protected := api.Group("/")
  protected.Use(cfg.AuthMiddleware.RequireAuth())

  //Chats
  chats := protected.Group("/chats")
  chats.POST("/find-or-create", cfg.ChatHandler.FindOrCreateSession)
  chats.GET("", cfg.ChatHandler.GetSessions)
  chats.GET("/:chat_id/messages", cfg.ChatHandler.GetMessages)
  chats.POST("/:chat_id/messages", cfg.ChatHandler.CreateMessage)
  chats.POST("/:chat_id/messages/stream", cfg.ChatHandler.StreamMessage)
  chats.PATCH("/:chat_id/messages/:message_id", cfg.ChatHandler.UpdateMessageFeedback)

  return router
}
