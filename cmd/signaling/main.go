package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/classpeer/signaling/config"
	"github.com/classpeer/signaling/internal/handlers"
	"github.com/classpeer/signaling/internal/hub"
	"github.com/classpeer/signaling/internal/middleware"
	"github.com/classpeer/signaling/internal/redis"
)

func main() {
	// Load .env if present, then configuration from the environment
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg.Environment)
	defer logger.Sync()

	// Connect to Redis (room metadata only; live rooms stay in-process)
	store, err := redis.NewStore(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer store.Close()

	logger.Info("redis connection established")

	// The one room registry for this process
	registry := hub.New(logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins, logger))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "rooms": registry.Count()})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Room management API (authenticated)
	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Create room (requires JWT)
		apiGroup.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), handlers.CreateRoom(store, logger))

		// Get room info (public)
		apiGroup.GET("/rooms/:roomId", handlers.GetRoom(store, registry))

		// Delete room (requires JWT, creator only)
		apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), handlers.DeleteRoom(store, registry, logger))
	}

	// WebSocket signaling endpoint
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal", handlers.HandleSignaling(registry, store, logger))
	}

	// Start server
	logger.Info("starting class signaling server", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

func newLogger(environment string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
	return logger
}
