package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/confide-ai/confide-backend/internal/handlers"
	"github.com/confide-ai/confide-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware      *middleware.Middleware
	HealthHandler       *handlers.HealthHandler
	ConversationHandler *handlers.ConversationHandler
	MessageHandler      *handlers.MessageHandler
	PromptHandler       *handlers.PromptHandler
	AllowedOrigins      []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	//-----------------------------------------
	// Cors Setup
	//-----------------------------------------
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	//-----------------------------------------
	// Health Routes
	//-----------------------------------------
	router.GET("/health/liveness", cfg.HealthHandler.Liveness)
	router.GET("/health/readiness", cfg.HealthHandler.Readiness)

	//-----------------------------------------
	// Public Routes
	//-----------------------------------------
	// The stream endpoint authorizes by possession of the one-time message
	// token, not by bearer auth; EventSource clients cannot set headers.
	router.GET("/message/:token", cfg.MessageHandler.Stream)

	//------------------------------------------
	// Protected Routes
	//------------------------------------------
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.GET("/conversation", cfg.ConversationHandler.List)
	protected.GET("/conversation/:id", cfg.ConversationHandler.Get)

	protected.POST("/message", cfg.MessageHandler.Post)
	protected.GET("/message", cfg.MessageHandler.Search)

	protected.GET("/prompt", cfg.PromptHandler.List)

	return router
}
