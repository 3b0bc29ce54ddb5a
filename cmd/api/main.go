package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniosun/tacdra-api/api/swagger"
	"github.com/uniosun/tacdra-api/internal/handler"
	"github.com/uniosun/tacdra-api/internal/middleware"
	"github.com/uniosun/tacdra-api/internal/models"
	"github.com/uniosun/tacdra-api/internal/repository"
	"github.com/uniosun/tacdra-api/internal/service"
	"github.com/uniosun/tacdra-api/pkg/cache"
	"github.com/uniosun/tacdra-api/pkg/config"
	"github.com/uniosun/tacdra-api/pkg/database"
	"github.com/uniosun/tacdra-api/pkg/logger"
	corsmiddleware "github.com/uniosun/tacdra-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniosun/tacdra-api/pkg/middleware/requestid"
	"github.com/uniosun/tacdra-api/pkg/storage"
)

// @title UNIOSUN TACDRA API
// @version 1.0.0
// @description Transcript and Academic Certificate Document Request API
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Tracking cache is optional: without Redis the public lookup simply
	// reads through to the database.
	var trackingCache *service.TrackingCache
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, tracking cache disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		trackingCache = service.NewTrackingCache(redisClient, cfg.Tracking.CacheTTL, logr)
	}

	// Services.
	metricsSvc := service.NewMetricsService()

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, cfg.Notifications, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	codes := service.NewTrackingCodeGenerator(cfg.Tracking.Prefix)
	appOpts := []service.ApplicationServiceOption{
		service.WithStatusNotifier(notificationSvc),
		service.WithCodeAttempts(cfg.Tracking.MaxAttempts),
		service.WithWorkflowMetrics(metricsSvc),
	}
	if trackingCache != nil {
		appOpts = append(appOpts, service.WithStatusCache(trackingCache))
	}
	appSvc := service.NewApplicationService(appRepo, auditRepo, codes, logr, appOpts...)

	var gateway service.PaymentGateway
	if cfg.Remita.Sandbox {
		gateway = service.NewSandboxGateway(logr)
	} else {
		gateway = service.NewRemitaGateway(cfg.Remita, logr)
	}
	paymentSvc := service.NewPaymentService(paymentRepo, appRepo, userRepo, appSvc, gateway, logr,
		service.WithPaymentMetrics(metricsSvc))

	store, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	documentSvc := service.NewDocumentService(documentRepo, appRepo, store, signer, logr)
	documentSvc.StartCleanup(ctx, cfg.Documents.CleanupInterval, cfg.Documents.RetentionTTL)

	authSvc := service.NewAuthService(userRepo, auditRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "tacdra-api",
	})

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	appHandler := handler.NewApplicationHandler(appSvc)
	trackingHandler := handler.NewTrackingHandler(appSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	// Public tracking lookup requires no session.
	api.GET("/track/:code", trackingHandler.Track)

	apps := api.Group("/applications", middleware.JWT(authSvc))
	{
		apps.POST("", appHandler.Submit)
		apps.GET("", appHandler.ListMine)
		apps.GET("/review", middleware.RequireStaff(), appHandler.ReviewQueue)
		apps.GET("/review/export", middleware.RequireStaff(), appHandler.ExportReviewQueue)
		apps.GET("/:id", appHandler.Get)
		apps.POST("/:id/cancel", appHandler.Cancel)
		apps.POST("/:id/transition", middleware.RequireStaff(), appHandler.Transition)
		apps.POST("/:id/finalize", middleware.RequireRoles(models.RoleExamsRecords, models.RoleAdmin), appHandler.Finalize)
		apps.POST("/:id/notes", middleware.RequireStaff(), appHandler.AddNote)
		apps.GET("/:id/notes", appHandler.Notes)
		apps.POST("/:id/documents", middleware.RequireStaff(), documentHandler.Upload)
		apps.GET("/:id/documents", documentHandler.List)
	}

	payments := api.Group("/payments")
	{
		payments.POST("/initialize", middleware.JWT(authSvc), paymentHandler.Initialize)
		payments.POST("/verify", middleware.JWT(authSvc), paymentHandler.Verify)
		payments.POST("/webhook", paymentHandler.Webhook)
		payments.GET("/:id", middleware.JWT(authSvc), paymentHandler.List)
		payments.GET("/:id/receipt", middleware.JWT(authSvc), paymentHandler.Receipt)
	}

	documents := api.Group("/documents")
	{
		documents.GET("/:id/download-url", middleware.JWT(authSvc), documentHandler.SignedURL)
		documents.GET("/download/:token", documentHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
