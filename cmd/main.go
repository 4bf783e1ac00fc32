package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/confide-ai/confide-backend/internal/ai"
	"github.com/confide-ai/confide-backend/internal/cache"
	"github.com/confide-ai/confide-backend/internal/db"
	"github.com/confide-ai/confide-backend/internal/handlers"
	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/middleware"
	"github.com/confide-ai/confide-backend/internal/search"
	"github.com/confide-ai/confide-backend/internal/server"
	"github.com/confide-ai/confide-backend/internal/services"
	"github.com/confide-ai/confide-backend/internal/store"
	"github.com/confide-ai/confide-backend/internal/stream"
	"github.com/confide-ai/confide-backend/internal/utils"
)

func main() {
	// A missing .env is fine in containers where everything is injected.
	_ = godotenv.Load()

	// Logger Setup
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Environment Variables
	log.Info("Loading environment variables for Main now...")
	redisAddress := utils.GetEnv("REDIS_ADDRESS", "localhost:6379", log)
	redisPassword := utils.GetEnv("REDIS_PASSWORD", "", log)
	storeBackend := utils.GetEnv("STORE_BACKEND", "postgres", log)
	promptsPath := utils.GetEnv("PROMPTS_PATH", "data/prompts.csv", log)
	moderationEnabled := utils.GetEnvAsBool("MODERATION_ENABLED", true, log)
	allowedOrigins := utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS", nil, log)

	// Redis Setup
	log.Info("Setting up Redis from Main now...")
	redisClient, err := db.NewRedisClient(log, redisAddress, redisPassword)
	if err != nil {
		log.Error("Fatal error: cannot connect to Redis", "error", err)
		os.Exit(1)
	}
	redisCache := cache.NewRedisCache(log, redisClient)
	redisStream := stream.NewRedisStream(log, redisClient)

	// Store Setup
	log.Info("Setting up Store from Main now...", "backend", storeBackend)
	var dataStore store.Store
	switch storeBackend {
	case "postgres":
		postgresService, err := db.NewPostgresService(log)
		if err != nil {
			log.Error("Fatal error: cannot connect to Postgres", "error", err)
			os.Exit(1)
		}
		if err := postgresService.AutoMigrateAll(); err != nil {
			log.Error("Fatal error: Postgres migration failed", "error", err)
			os.Exit(1)
		}
		dataStore = store.NewPostgresStore(postgresService.DB(), log, redisCache)
	case "cache":
		dataStore = store.NewRedisStore(log, redisClient)
	default:
		log.Error("Fatal error: unknown STORE_BACKEND", "backend", storeBackend)
		os.Exit(1)
	}

	// AI Setup
	log.Info("Setting up AI provider from Main now...")
	openAIService, err := ai.NewOpenAIService(log)
	if err != nil {
		log.Error("Fatal error: cannot init OpenAI service", "error", err)
		os.Exit(1)
	}

	// Search Setup
	log.Info("Setting up Search from Main now...")
	qdrantHost, qdrantPort := db.QdrantAddress(log)
	qdrantClient, err := db.NewQdrantClient(log, qdrantHost, qdrantPort)
	if err != nil {
		log.Error("Fatal error: cannot connect to Qdrant", "error", err)
		os.Exit(1)
	}
	vectors := search.NewQdrantVectors(log, qdrantClient, db.QdrantCollection, db.QdrantDimension)
	searchEngine := search.NewEngine(log, vectors, dataStore, redisCache, openAIService)

	// Services Setup
	log.Info("Setting up Services from Main now...")
	promptCatalog, err := services.NewCSVPromptCatalog(log, promptsPath)
	if err != nil {
		log.Error("Fatal error: cannot load prompt catalog", "path", promptsPath, "error", err)
		os.Exit(1)
	}
	verifier, err := services.NewJWKSVerifier(log)
	if err != nil {
		log.Error("Fatal error: cannot init token verifier", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(log, verifier, dataStore)
	conversationService := services.NewConversationService(
		log, dataStore, redisStream, searchEngine, openAIService, openAIService, promptCatalog, moderationEnabled,
	)

	// Handler Setup
	log.Info("Setting up Handlers from Main now...")
	healthHandler := handlers.NewHealthHandler(log,
		handlers.ReadinessProbe{ID: "cache", Check: redisCache.Readiness},
		handlers.ReadinessProbe{ID: "store", Check: dataStore.Readiness},
		handlers.ReadinessProbe{ID: "stream", Check: redisStream.Readiness},
		handlers.ReadinessProbe{ID: "search", Check: searchEngine.Readiness},
	)
	conversationHandler := handlers.NewConversationHandler(log, conversationService)
	messageHandler := handlers.NewMessageHandler(log, conversationService, searchEngine, redisStream)
	promptHandler := handlers.NewPromptHandler(log, promptCatalog)

	// Middleware Setup
	authMiddleware := middleware.NewMiddleware(log, authService)

	// Router Setup
	log.Info("Setting up Router from Main now...")
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:      authMiddleware,
		HealthHandler:       healthHandler,
		ConversationHandler: conversationHandler,
		MessageHandler:      messageHandler,
		PromptHandler:       promptHandler,
		AllowedOrigins:      allowedOrigins,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
