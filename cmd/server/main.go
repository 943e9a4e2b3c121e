package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kinfolk/backend/internal/auth"
	"github.com/kinfolk/backend/internal/cache"
	"github.com/kinfolk/backend/internal/config"
	"github.com/kinfolk/backend/internal/database"
	"github.com/kinfolk/backend/internal/email"
	"github.com/kinfolk/backend/internal/handlers"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/middleware"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/kinfolk/backend/internal/retention"
	"github.com/kinfolk/backend/internal/telemetry"
	"github.com/kinfolk/backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName = "kinfolk-backend"
	wsPath      = "/api/v1/ws"
)

func main() {
	// Load environment variables before anything reads them
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.FatalWithFields("Invalid configuration", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		logger.FatalWithFields("Failed to initialize logger", err)
	}
	defer logger.Close()

	if envErr != nil {
		logger.Log.Warn(".env file not found, using system environment variables")
	}
	logger.Log.Info("=== Kinfolk server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("presence_policy", cfg.PresencePolicy))

	metrics.Initialize()

	ctx := context.Background()
	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTELEndpoint,
		Enabled:      cfg.OTELEnabled,
		SamplingRate: cfg.OTELSamplingRate,
	})
	if err != nil {
		// Tracing is optional; the server runs without it
		logger.WarnWithFields("Failed to initialize tracing", err)
	}

	db, err := database.Open(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}
	if tp != nil {
		if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
			logger.WarnWithFields("Failed to install database tracing", err)
		}
	}
	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	users := repository.NewUserRepository(db)
	authService := auth.NewService(cfg.JWTSecret, cfg.TokenTTL, users)

	// Real-time core
	hub := websocket.NewHub()
	hub.SetRateLimitConfig(websocket.RateLimitConfig{
		MaxMessagesPerSecond: cfg.WSMaxMessagesPerSecond,
		BurstSize:            cfg.WSBurst,
	})

	presence := websocket.NewPresence(hub, websocket.PresencePolicy(cfg.PresencePolicy),
		repository.NewFriendRepository(db), users)
	// Nothing is connected yet, so any online flag left behind is stale
	if err := presence.ResetStale(ctx); err != nil {
		logger.WarnWithFields("Failed to reset stale presence", err)
	}
	presence.Start()

	var mailer websocket.EmailSender
	if cfg.EmailEnabled() {
		svc, err := email.NewEmailService(cfg.SESRegion, cfg.EmailFrom, cfg.EmailFromName, cfg.AppBaseURL)
		if err != nil {
			logger.WarnWithFields("Offline email disabled", err)
		} else {
			mailer = svc
		}
	}

	notificationRepo := repository.NewNotificationRepository(db)
	notifier := websocket.NewNotifier(hub, notificationRepo, users, mailer,
		websocket.NotifierConfig{Workers: cfg.NotifyWorkers, QueueSize: cfg.NotifyQueueSize})
	notifier.Start()

	cleanup := retention.NewCleanupService(notificationRepo, retention.Config{Retention: cfg.NotificationRetention})
	cleanup.Start()

	messenger := websocket.NewMessenger(hub, repository.NewMessageRepository(db), notifier)
	messenger.Register()

	wsHandler := websocket.NewHandler(hub, authService, cfg.AllowedOrigins)
	wsHandler.SetPresence(presence)

	// Redis fans events out across instances and backs the shared rate limits
	var redisClient *cache.RedisClient
	var relay *websocket.RedisRelay
	if cfg.RedisEnabled {
		redisClient, err = cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err != nil {
			logger.WarnWithFields("Redis unavailable, running single-instance", err)
		} else {
			relay = websocket.NewRedisRelay(hub, redisClient, "")
			if err := relay.Start(ctx); err != nil {
				logger.WarnWithFields("Failed to start real-time relay", err)
				hub.SetRelay(nil)
				relay = nil
			}
		}
	}

	h := handlers.NewHandlers(db, authService)
	h.SetWebSocketHandler(wsHandler)
	h.SetPresence(presence)
	h.SetMessenger(messenger)
	h.SetNotifier(notifier)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if tp != nil {
		r.Use(middleware.TracingMiddleware(serviceName, wsPath)...)
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath})))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if err := database.Health(db); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"timestamp":   time.Now().UTC(),
			"service":     serviceName,
			"connections": hub.GetMetrics().ActiveConnections,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := auth.Middleware(authService)
	requireAdmin := middleware.RequireAdmin()

	// API routes
	api := r.Group("/api/v1")
	{
		// Authentication routes (public, rate limited per IP)
		authGroup := api.Group("/auth")
		{
			authGroup.Use(middleware.RedisRateLimitMiddleware(redisClient, "auth", middleware.AuthRateLimitConfig()))
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
			authGroup.GET("/me", requireAuth, h.Me)
		}

		// User routes
		userRoutes := api.Group("/users")
		{
			userRoutes.Use(requireAuth)
			userRoutes.PUT("/me/preferences", h.UpdatePreferences)
			userRoutes.GET("/:id", h.GetUser)
			userRoutes.GET("/:id/presence", h.GetUserPresence)
		}

		// Friend routes
		friends := api.Group("/friends")
		{
			friends.Use(requireAuth)
			friends.GET("", h.ListFriends)
			friends.DELETE("/:id", h.Unfriend)
			friends.POST("/requests", h.SendFriendRequest)
			friends.GET("/requests", h.ListFriendRequests)
			friends.POST("/requests/:id/accept", h.AcceptFriendRequest)
			friends.POST("/requests/:id/reject", h.RejectFriendRequest)
		}

		// Post routes
		posts := api.Group("/posts")
		{
			posts.Use(requireAuth)
			posts.POST("", h.CreatePost)
			posts.GET("/:id", h.GetPost)
			posts.POST("/:id/like", h.LikePost)
			posts.DELETE("/:id/like", h.UnlikePost)
			posts.POST("/:id/share", h.SharePost)
			posts.POST("/:id/comments", h.CreateComment)
			posts.GET("/:id/comments", h.ListComments)
		}

		// Direct message routes
		messages := api.Group("/messages")
		{
			messages.Use(requireAuth)
			messages.POST("", middleware.RedisRateLimitMiddleware(redisClient, "messages", middleware.MessageRateLimitConfig()), h.SendMessage)
			messages.GET("/:user_id", h.GetConversation)
			messages.POST("/:user_id/read", h.MarkConversationRead)
		}

		// Notification routes
		notifications := api.Group("/notifications")
		{
			notifications.Use(requireAuth)
			notifications.GET("", h.GetNotifications)
			notifications.GET("/counts", h.GetNotificationCounts)
			notifications.POST("/read", h.MarkNotificationsRead)
		}

		// WebSocket routes
		ws := api.Group("/ws")
		{
			// Auth via ?token=... or Authorization header, checked before the upgrade
			ws.GET("", wsHandler.HandleWebSocket)
			ws.POST("/online", requireAuth, wsHandler.HandleOnlineStatus)
			ws.GET("/metrics", requireAuth, requireAdmin, wsHandler.HandleMetrics)
		}

		// Admin routes
		admin := api.Group("/admin")
		{
			admin.Use(requireAuth, requireAdmin)
			admin.POST("/notify", h.AdminNotify)
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info("Kinfolk backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithFields("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close live connections first so offline transitions are recorded
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.WarnWithFields("WebSocket shutdown warning", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithFields("Server forced to shutdown", err)
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logger.WarnWithFields("Notification queue not drained", err)
	}
	presence.Stop()
	cleanup.Stop()
	if relay != nil {
		relay.Stop()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
		logger.WarnWithFields("Tracer shutdown warning", err)
	}
	if err := database.Close(db); err != nil {
		logger.WarnWithFields("Database close warning", err)
	}

	logger.Log.Info("Server exited")
}
