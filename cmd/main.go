package main

import (
  "context"
  "fmt"
  "os"
  "time"

  "github.com/redis/go-redis/v9"

  "github.com/yayska-org/yayska-backend/internal/db"
  "github.com/yayska-org/yayska-backend/internal/handlers"
  "github.com/yayska-org/yayska-backend/internal/llm"
  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/middleware"
  "github.com/yayska-org/yayska-backend/internal/repos"
  "github.com/yayska-org/yayska-backend/internal/server"
  "github.com/yayska-org/yayska-backend/internal/services"
  "github.com/yayska-org/yayska-backend/internal/utils"
)

func main() {
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
  log.Info("Attempting to load environment variables for Main now...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  aiModel := utils.GetEnv("AI_MODEL", string(llm.GeminiFlash25), log)
  aiDailyLimit := utils.GetEnvAsInt("AI_REQUESTS_PER_DAY_LIMIT", 50, log)
  aiWhitelist := utils.GetEnvAsSlice("AI_REQUEST_WHITELIST", nil, log)
  openaiAPIKey := utils.GetEnv("OPENAI_API_KEY", "", log)
  openaiBaseURL := utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1", log)
  geminiAPIKey := utils.GetEnv("GEMINI_API_KEY", "", log)
  geminiBaseURL := utils.GetEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai", log)
  ollamaBaseURL := utils.GetEnv("OLLAMA_BASE_URL", "http://localhost:11434", log)
  redisAddress := utils.GetEnv("REDIS_ADDRESS", "localhost:6379", log)
  redisPassword := utils.GetEnv("REDIS_PASSWORD", "", log)
  llmCacheTTL := utils.GetEnvAsInt("LLM_CACHE_TTL", 86400, log)
  corsOrigins := utils.GetEnvAsSlice("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"}, log)
  log.Info("Environment variables loaded for Main :)")

  // Postgres Setup
  log.Info("Setting Up Postgres from Main now...")
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("DB init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()
  log.Info("Postgres Setup From Main Successful :)")

  // Repositories Setup
  log.Info("Setting Up Repositories from Main now...")
  userRepo := repos.NewUserRepo(thePG, log)
  childRepo := repos.NewChildRepo(thePG, log)
  conceptRepo := repos.NewConceptRepo(thePG, log)
  sessionRepo := repos.NewChatSessionRepo(thePG, log)
  messageRepo := repos.NewChatMessageRepo(thePG, log)
  log.Info("Repositories Set Up From Main Successful :)")

  // LLM Backend Setup
  log.Info("Setting Up LLM Backends from Main now...")
  registry := llm.NewRegistry()
  registry.Register("openai", llm.NewOpenAICompatBackend("openai", openaiBaseURL, openaiAPIKey, log))
  registry.Register("gemini", llm.NewOpenAICompatBackend("gemini", geminiBaseURL, geminiAPIKey, log))
  registry.Register("ollama", llm.NewOllamaBackend(ollamaBaseURL, log))
  log.Info("LLM Backends Set Up From Main Successful :)")

  // LLM Cache Setup
  log.Info("Setting Up LLM Cache from Main now...")
  var cacheStore llm.Store
  redisClient := redis.NewClient(&redis.Options{
    Addr:     redisAddress,
    Password: redisPassword,
  })
  pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
  if err := redisClient.Ping(pingCtx).Err(); err != nil {
    log.Warn("Redis unreachable, falling back to in-memory LLM cache", "error", err)
    cacheStore = llm.NewMemoryStore()
  } else {
    cacheStore = llm.NewRedisStore(redisClient, time.Duration(llmCacheTTL)*time.Second)
    log.Info("Redis LLM Cache is active!")
  }
  cancel()

  gateway := llm.NewGateway(registry, cacheStore, log)

  // Services Setup
  log.Info("Setting up Services from Main now...")
  rateLimitService := services.NewRateLimitService(log, userRepo, aiDailyLimit, aiWhitelist)
  contextService := services.NewChatContextService(log, userRepo, childRepo, conceptRepo, sessionRepo, messageRepo)
  chatService := services.NewChatService(thePG, log, sessionRepo, messageRepo, conceptRepo, contextService, gateway, llm.Model(aiModel))
  log.Info("Services Set Up From Main Successful :)")

  // Handler Setup
  log.Info("Setting Up Handlers from Main now...")
  chatHandler := handlers.NewChatHandler(log, chatService, rateLimitService)
  log.Info("Handlers Set Up From Main Successful :)")

  // MiddleWare Setup
  log.Info("Setting Up Middleware from Main now...")
  authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)
  log.Info("Middleware Set Up From Main Successful :)")

  // Router Setup
  log.Info("Setting Up Router from Main now...")
  router := server.NewRouter(server.RouterConfig{
    ChatHandler:    chatHandler,
    AuthMiddleware: authMiddleware,
    AllowOrigins:   corsOrigins,
  })
  log.Info("Router Set Up From Main Successful :)")

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Warn("Server failed", "error", err)
  }
}
