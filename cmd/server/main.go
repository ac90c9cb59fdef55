package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courierdesk/gateway/internal/auth"
	"github.com/courierdesk/gateway/internal/config"
	"github.com/courierdesk/gateway/internal/database"
	"github.com/courierdesk/gateway/internal/middleware"
	"github.com/courierdesk/gateway/internal/oauth"
	"github.com/courierdesk/gateway/internal/portal"
	"github.com/courierdesk/gateway/internal/ratelimit"
	"github.com/courierdesk/gateway/internal/token"
	"github.com/courierdesk/gateway/internal/user"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting Courier Desk gateway", zap.String("env", cfg.Env))

	// Connect to PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db.DB.DB)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database schema is up to date")
	}

	// Connect to Redis
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	keys := database.Keyspace(cfg.RedisKeyPrefix)

	// Initialize services
	userRepo := user.NewRepository(db.DB)
	tokenService := token.NewService(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		token.WithIssuer(cfg.JWT.Issuer),
	)
	rateLimiter := ratelimit.NewLimiter(
		redisClient.Client,
		keys,
		cfg.RateLimit.Window,
		cfg.RateLimit.MaxAttempts,
		cfg.RateLimit.LockoutDuration,
	)
	authService := auth.NewService(userRepo, tokenService, rateLimiter, logger.Named("auth"))
	authorizer := portal.NewAuthorizer()
	cookies := portal.CookieOptions{Domain: cfg.Cookie.Domain, Secure: cfg.Cookie.Secure}

	// Initialize handlers
	authHandler := auth.NewHandler(authService, cookies, cfg.JWT.AccessTokenTTL, map[string]auth.HealthChecker{
		"postgres": db,
		"redis":    redisClient,
	}, logger.Named("auth"))
	adminHandler := auth.NewAdminHandler(userRepo, rateLimiter, logger.Named("admin"))
	pages := portal.NewPages(authorizer, authService, cookies, logger.Named("pages"))

	// Set up Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.SetHTMLTemplate(portal.Templates())

	// Global middleware
	allowedOrigins := middleware.ParseAllowedOrigins(cfg.CORS.AllowedOrigins)
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	// Public routes
	router.GET("/health", authHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth routes
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)

		// Google sign-in is optional
		if cfg.Google.Enabled() {
			oauthStateManager := oauth.NewStateManager(redisClient.Client, keys)
			googleService := oauth.NewGoogleService(cfg.Google, oauthStateManager)
			oauthAuthService := oauth.NewAuthService(userRepo, authService, googleService, logger.Named("oauth"))
			oauthHandler := oauth.NewHandler(oauthAuthService, googleService, authorizer, cookies, cfg.JWT.AccessTokenTTL)

			authGroup.GET("/google", oauthHandler.GoogleLogin)
			authGroup.GET("/google/callback", oauthHandler.GoogleCallback)
		} else {
			logger.Info("Google sign-in disabled (GOOGLE_CLIENT_ID not set)")
		}

		// Protected routes (require authentication)
		protected := authGroup.Group("", middleware.Auth(authService))
		{
			protected.POST("/logout", authHandler.Logout)
			protected.GET("/me", authHandler.Me)
		}
	}

	// Portal APIs, one group per role
	api := router.Group("/api", middleware.Auth(authService))
	{
		adminAPI := api.Group("/admin", middleware.RequireRole(user.RoleSystemAdmin))
		adminAPI.GET("/profile", authHandler.Profile)
		adminAPI.GET("/login-attempts", adminHandler.LoginAttempts)
		adminAPI.DELETE("/lockouts", adminHandler.ClearLockout)

		companyAPI := api.Group("/company", middleware.RequireRole(user.RoleCompany))
		companyAPI.GET("/profile", authHandler.Profile)

		courierAPI := api.Group("/courier", middleware.RequireRole(user.RoleCourier))
		courierAPI.GET("/profile", authHandler.Profile)
	}

	// Pages behind the route authorizer
	pages.Register(router.Group("", portal.Gate(authorizer, authService, cookies)))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
