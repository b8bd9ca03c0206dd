package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/portal-estudiante-api/api/swagger"
	"github.com/noah-isme/portal-estudiante-api/internal/handler"
	"github.com/noah-isme/portal-estudiante-api/internal/middleware"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	"github.com/noah-isme/portal-estudiante-api/internal/repository"
	"github.com/noah-isme/portal-estudiante-api/internal/service"
	"github.com/noah-isme/portal-estudiante-api/migrations"
	"github.com/noah-isme/portal-estudiante-api/pkg/cache"
	"github.com/noah-isme/portal-estudiante-api/pkg/config"
	"github.com/noah-isme/portal-estudiante-api/pkg/database"
	"github.com/noah-isme/portal-estudiante-api/pkg/jobs"
	"github.com/noah-isme/portal-estudiante-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/portal-estudiante-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/portal-estudiante-api/pkg/middleware/requestid"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

// @title Portal del Estudiante API
// @version 1.0.0
// @description Document, payment and enrollment tracking backend for the student portal.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const outboxJobType = "outbox_drain"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	applied, err := database.Migrate(ctx, db, migrations.FS)
	if err != nil {
		logr.Sugar().Fatalw("database migration failed", "error", err)
	}
	if len(applied) > 0 {
		logr.Sugar().Infow("migrations applied", "versions", applied)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var redisClient *redis.Client
	if cfg.Notifications.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, unread count cache disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Notifications.CacheTTL, logr, true)
	}

	stores, err := buildObjectStores(ctx, cfg)
	if err != nil {
		logr.Sugar().Fatalw("object storage init failed", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	exportRepo := repository.NewExportRepository(db)

	dispatcher := service.NewNotificationDispatcher(userRepo, logr)
	relay := service.NewOutboxRelay(notificationRepo, cacheSvc, metrics, logr, service.OutboxRelayConfig{
		BatchSize:   cfg.Notifications.BatchSize,
		Workers:     cfg.Notifications.Workers,
		MaxAttempts: cfg.Notifications.MaxAttempts,
	})
	policy := service.UploadPolicy{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "portal-estudiante-api",
		Audience:           []string{"portal-estudiante"},
	})
	documentSvc := service.NewDocumentService(documentRepo, profileRepo, stores, dispatcher, relay, userRepo, metrics, logr, policy)
	reviewSvc := service.NewReviewService(documentRepo, paymentRepo, dispatcher, relay, userRepo, metrics, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, stores, dispatcher, relay, userRepo, metrics, validate, logr, policy)
	requestSvc := service.NewRequestService(requestRepo, dispatcher, relay, userRepo, validate, logr)
	profileSvc := service.NewProfileService(profileRepo, validate, logr)
	stageSvc := service.NewStageService(profileRepo, dispatcher, relay, userRepo, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, relay, cacheSvc, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("export storage init failed", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(paymentRepo, exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: 24 * time.Hour,
	}, logr)
	exportWorker := service.NewExportWorker(exportRepo, exporter, metrics, 3, logr)
	exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.Workers,
		BufferSize: 32,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	exportQueue.Start(ctx)
	defer exportQueue.Stop()
	exportSvc := service.NewExportJobService(exportRepo, exportQueue, exporter, userRepo, validate, logr, service.ExportJobConfig{
		CleanupInterval: time.Hour,
	})
	exportSvc.RecoverPendingJobs(ctx)
	exportSvc.StartCleanup(ctx)

	outboxQueue := jobs.NewQueue("outbox", func(ctx context.Context, _ jobs.Job) error {
		_, err := relay.Drain(ctx)
		return err
	}, jobs.QueueConfig{Workers: 1, BufferSize: 1, Logger: logr})
	outboxQueue.Start(ctx)
	defer outboxQueue.Stop()
	outboxQueue.Every(ctx, cfg.Notifications.ReplayInterval, func() jobs.Job {
		return jobs.Job{ID: uuid.NewString(), Type: outboxJobType}
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes := handler.Routes{
		Auth:           handler.NewAuthHandler(authSvc),
		Documents:      handler.NewDocumentHandler(documentSvc, reviewSvc),
		Payments:       handler.NewPaymentHandler(paymentSvc, reviewSvc, exportSvc),
		Requests:       handler.NewRequestHandler(requestSvc),
		Profiles:       handler.NewProfileHandler(profileSvc, stageSvc),
		Notifications:  handler.NewNotificationHandler(notificationSvc),
		Tokens:         authSvc,
		Audit:          userRepo,
		Logger:         logr,
		MaxUploadBytes: cfg.Uploads.MaxFileSizeBytes,
	}
	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", middleware.JWT(authSvc), middleware.RequireCapability(models.CapMaintenance), metricsHandler.Summary)
	routes.Register(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", stores.Primary().Provider())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// buildObjectStores keeps local storage readable for rows not yet migrated.
func buildObjectStores(ctx context.Context, cfg *config.Config) (*service.ObjectStores, error) {
	local, err := storage.NewLocalStorage(cfg.Storage.LocalDir)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != config.StorageDriverDrive {
		return service.NewObjectStores(local), nil
	}
	creds := storage.DriveCredentials{File: cfg.Storage.DriveCredentialsFile, JSON: cfg.Storage.DriveCredentialsJSON}
	drive, err := storage.NewDriveStorage(ctx, cfg.Storage.DriveFolderID, creds.ClientOptions()...)
	if err != nil {
		return nil, err
	}
	return service.NewObjectStores(drive, local), nil
}
