package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/teacher-hub-api/api/swagger"
	"github.com/noah-isme/teacher-hub-api/internal/handler"
	"github.com/noah-isme/teacher-hub-api/internal/middleware"
	"github.com/noah-isme/teacher-hub-api/internal/models"
	"github.com/noah-isme/teacher-hub-api/internal/repository"
	"github.com/noah-isme/teacher-hub-api/internal/service"
	"github.com/noah-isme/teacher-hub-api/pkg/cache"
	"github.com/noah-isme/teacher-hub-api/pkg/config"
	"github.com/noah-isme/teacher-hub-api/pkg/database"
	"github.com/noah-isme/teacher-hub-api/pkg/jobs"
	"github.com/noah-isme/teacher-hub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/teacher-hub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/teacher-hub-api/pkg/middleware/requestid"
	"github.com/noah-isme/teacher-hub-api/pkg/storage"
)

// @title Teacher Hub API
// @version 1.0.0
// @description Teacher directory, evaluation aggregation and performance scoring
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Evaluations.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Evaluations.CacheTTL, logr, true)
		}
	}

	teacherRepo := repository.NewTeacherRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	performanceRepo := repository.NewPerformanceRepository(db)
	userRepo := repository.NewUserRepository(db)

	teacherService := service.NewTeacherService(teacherRepo, validate, logr)
	evaluationService := service.NewEvaluationService(evaluationRepo, teacherRepo, cacheService, validate, logr, cfg.Evaluations.CacheTTL)
	performanceService := service.NewPerformanceService(performanceRepo, teacherRepo, evaluationRepo, nil, validate, logr)
	performanceService.SetTrendMonths(cfg.Performance.TrendMonths)
	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "teacher-hub-api",
	})

	var recalcQueue *jobs.Queue
	if cfg.Recalc.Enabled {
		recalcQueue = jobs.NewQueue("performance-recalc", func(ctx context.Context, job jobs.Job) error {
			teacherID, ok := job.Payload.(string)
			if !ok {
				return fmt.Errorf("unexpected payload type %T", job.Payload)
			}
			_, err := performanceService.Calculate(ctx, teacherID, service.NormalizePeriod(job.Enqueued))
			return err
		}, jobs.QueueConfig{
			Workers:    cfg.Recalc.Workers,
			BufferSize: cfg.Recalc.BufferSize,
			MaxRetries: cfg.Recalc.MaxRetries,
			RetryDelay: cfg.Recalc.RetryDelay,
			Logger:     logr,
		})
		recalcQueue.Start(context.Background())
		defer recalcQueue.Stop()
	}

	teacherHandler := handler.NewTeacherHandler(teacherService)
	evaluationHandler := handler.NewEvaluationHandler(evaluationService, nil, logr)
	if recalcQueue != nil {
		evaluationHandler = handler.NewEvaluationHandler(evaluationService, recalcQueue, logr)
	}
	performanceHandler := handler.NewPerformanceHandler(performanceService)
	authHandler := handler.NewAuthHandler(authService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportService := service.NewExportService(evaluationRepo, performanceRepo, teacherRepo, store, signer, service.ExportConfig{
			APIPrefix:    cfg.APIPrefix,
			ResultTTL:    cfg.Exports.SignedURLTTL,
			RankingLimit: cfg.Exports.RankingLimit,
		}, logr, nil, nil)
		exportHandler = handler.NewExportHandler(exportService)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsService))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	write := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	teachers := authed.Group("/teachers")
	{
		teachers.GET("", teacherHandler.List)
		teachers.GET("/statistics", teacherHandler.Statistics)
		teachers.GET("/recent", teacherHandler.Recent)
		teachers.GET("/code/:code", teacherHandler.GetByCode)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.POST("", write, teacherHandler.Create)
		teachers.PUT("/:id", write, teacherHandler.Update)
		teachers.PATCH("/:id/status", write, teacherHandler.ChangeStatus)
		teachers.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), teacherHandler.Delete)

		teachers.POST("/:id/evaluations", evaluationHandler.Submit)
		teachers.GET("/:id/evaluations", evaluationHandler.ListByTeacher)
		teachers.GET("/:id/evaluations/average", evaluationHandler.Average)
		teachers.GET("/:id/evaluations/statistics", evaluationHandler.Statistics)
		teachers.GET("/:id/evaluations/report", evaluationHandler.Report)

		teachers.GET("/:id/performance", performanceHandler.History)
		teachers.GET("/:id/performance/report", performanceHandler.Report)
		teachers.POST("/:id/performance/calculate", write, performanceHandler.Calculate)
	}

	evaluations := authed.Group("/evaluations")
	{
		evaluations.GET("", evaluationHandler.ListByDateRange)
		evaluations.GET("/type/:type", evaluationHandler.ListByType)
		evaluations.GET("/top-rated", evaluationHandler.TopRated)
	}

	performance := authed.Group("/performance")
	{
		performance.GET("/ranking", performanceHandler.Ranking)
		performance.GET("/statistics", performanceHandler.Statistics)
		performance.POST("/compare", performanceHandler.Compare)
		performance.PUT("/:id/metrics", write, performanceHandler.UpdateMetrics)
	}

	if exportHandler != nil {
		exports := authed.Group("/exports")
		exports.POST("", write, exportHandler.Generate)
		// download is token-authenticated, no JWT required
		api.GET("/exports/download/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
