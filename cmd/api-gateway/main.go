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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academy-import-api/api/swagger"
	"github.com/noah-isme/academy-import-api/internal/handler"
	"github.com/noah-isme/academy-import-api/internal/middleware"
	"github.com/noah-isme/academy-import-api/internal/models"
	"github.com/noah-isme/academy-import-api/internal/repository"
	"github.com/noah-isme/academy-import-api/internal/service"
	"github.com/noah-isme/academy-import-api/pkg/cache"
	"github.com/noah-isme/academy-import-api/pkg/config"
	"github.com/noah-isme/academy-import-api/pkg/database"
	"github.com/noah-isme/academy-import-api/pkg/jobs"
	"github.com/noah-isme/academy-import-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-import-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-import-api/pkg/middleware/requestid"
	"github.com/noah-isme/academy-import-api/pkg/storage"
)

// @title Academy Import API
// @version 1.0.0
// @description Bulk spreadsheet import, review and export for the academy backend
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr, metricsSvc)
	defer cacheRepo.Close() //nolint:errcheck
	sessionRepo := repository.NewImportSessionRepository(cacheRepo)
	runRepo := repository.NewImportRunRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	academyRepo := repository.NewAcademyRepository(cfg.Academy, nil, logr.Named("academy"))

	photoStore, err := storage.NewLocalStorage(cfg.Imports.PhotoDir)
	if err != nil {
		logr.Fatal("failed to prepare photo storage", zap.Error(err))
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	worker := service.NewImportWorker(runRepo, academyRepo, metricsSvc, logr.Named("import_worker"))
	queue := jobs.NewQueue("imports", worker.Handle, jobs.QueueConfig{
		Workers:     1,
		MaxAttempts: 1,
		Logger:      logr.Named("queue"),
	})

	validate := validator.New()
	importSvc := service.NewImportService(academyRepo, sessionRepo, runRepo, queue, photoStore, validate, metricsSvc, logr.Named("imports"), service.ImportServiceConfig{
		SessionTTL:       cfg.Imports.SessionTTL,
		MaxFileSizeBytes: cfg.Imports.MaxFileSizeBytes,
		MaxPhotos:        cfg.Imports.MaxPhotos,
		RunRetention:     cfg.Imports.RunRetention,
	})
	exportSvc := service.NewExportService(academyRepo, exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr.Named("exports"))
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
	})

	importSvc.RecoverInterrupted(ctx)
	queue.Start(ctx)
	importSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	importHandler := handler.NewImportHandler(importSvc, exportSvc, cfg.APIPrefix)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"redis":    cacheRepo,
	})

	r := gin.New()
	r.MaxMultipartMemory = cfg.Imports.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/export/:token", exportHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	secured.Use(middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff))

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(auditRepo, logr, action, resource)
	}

	imports := secured.Group("/imports")
	imports.POST("/students", audit(models.AuditActionImportPreview, "student_import"), importHandler.PreviewStudents)
	imports.POST("/results", audit(models.AuditActionImportPreview, "result_import"), importHandler.PreviewResults)
	imports.GET("/sessions/:id", importHandler.GetSession)
	imports.GET("/sessions/:id/errors", importHandler.SessionErrors)
	imports.POST("/sessions/:id/execute", audit(models.AuditActionImportExecute, "import_session"), importHandler.Execute)
	imports.GET("/runs", importHandler.ListRuns)
	imports.GET("/runs/:id", importHandler.GetRun)
	imports.GET("/runs/:id/report", importHandler.RunReport)
	imports.GET("/templates/:kind", importHandler.Template)

	results := secured.Group("/results")
	results.POST("/export", audit(models.AuditActionResultExport, "results"), exportHandler.ExportResults)
	results.POST("/bulk-delete",
		middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin),
		audit(models.AuditActionBulkDelete, "results"),
		importHandler.BulkDelete,
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	queue.Stop()
}
