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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-schedule-api/api/swagger"
	"github.com/noah-isme/tutor-schedule-api/internal/handler"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/repository"
	"github.com/noah-isme/tutor-schedule-api/internal/router"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	"github.com/noah-isme/tutor-schedule-api/pkg/cache"
	"github.com/noah-isme/tutor-schedule-api/pkg/config"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
	"github.com/noah-isme/tutor-schedule-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-schedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-schedule-api/pkg/middleware/requestid"
)

// @title Tutor Schedule API
// @version 1.0.0
// @description Session scheduling and lesson-hour ledger for tutoring centers.
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
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			sugar.Fatalw("database migration failed", "error", err)
		}
	}

	metricsSvc := service.NewMetricsService()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, scope cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr, "tutor-schedule")
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.ScopeCache.TTL, logr, cfg.ScopeCache.Enabled && redisClient != nil)

	txBeginner := database.NewTxBeginner(db, cfg.Database.IsolationLevel)

	sessionRepo := repository.NewSessionRepository(db)
	sectionRepo := repository.NewClassSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	recordRepo := repository.NewLessonRecordRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	scopeRepo := repository.NewScopeRepository(db)

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiration})
	scopeCache := service.NewScopeCache(scopeRepo, cacheSvc, cfg.ScopeCache.TTL, logr)
	validate := service.NewValidator()

	conflictSvc := service.NewConflictService(sessionRepo, enrollmentRepo, sectionRepo, logr)
	lifecycleSvc := service.NewSessionLifecycleService(sessionRepo, enrollmentRepo, studentRepo, recordRepo, attendanceRepo, conflictSvc, txBeginner, metricsSvc, logr)
	sessionSvc := service.NewSessionService(sessionRepo, sectionRepo, conflictSvc, lifecycleSvc, txBeginner, metricsSvc, validate, logr)
	batchSvc := service.NewBatchScheduleService(sectionRepo, sessionRepo, conflictSvc, enrollmentRepo, txBeginner, metricsSvc, logr, service.BatchScheduleConfig{MaxInstances: cfg.Batch.MaxInstances})
	hoursSvc := service.NewHoursSummaryService(sectionRepo, sessionRepo, enrollmentRepo, logr)
	exportSvc := service.NewTimetableExportService(sessionRepo, cfg.Export.MaxRows, logr)

	// The sweep writes through its own pool so a long run never starves request handling.
	sweepDB, err := database.NewDedicatedPool(cfg.Database, cfg.Sweep.MaxOpenConns)
	if err != nil {
		sugar.Fatalw("sweep database connection failed", "error", err)
	}
	defer sweepDB.Close()
	sweepSessions := repository.NewSessionRepository(sweepDB)
	sweepEnrollments := repository.NewEnrollmentRepository(sweepDB)
	sweepLifecycle := service.NewSessionLifecycleService(
		sweepSessions,
		sweepEnrollments,
		repository.NewStudentRepository(sweepDB),
		repository.NewLessonRecordRepository(sweepDB),
		repository.NewAttendanceRepository(sweepDB),
		service.NewConflictService(sweepSessions, sweepEnrollments, repository.NewClassSectionRepository(sweepDB), logr),
		database.NewTxBeginner(sweepDB, cfg.Database.IsolationLevel),
		metricsSvc,
		logr.Named("sweep"),
	)
	sweepSvc := service.NewSweepService(sweepSessions, sweepLifecycle, metricsSvc, logr.Named("sweep"), service.SweepConfig{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepQueue := jobs.NewQueue("sweep", sweepSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Sweep.QueueWorkers,
		BufferSize: 1,
		MaxRetries: 1,
		RetryDelay: time.Minute,
		Logger:     logr,
	})
	sweepQueue.Start(ctx)
	defer sweepQueue.Stop()

	if cfg.Sweep.Enabled {
		if err := sweepSvc.Start(cfg.Sweep.Cron); err != nil {
			sugar.Fatalw("invalid sweep schedule", "cron", cfg.Sweep.Cron, "error", err)
		}
		defer sweepSvc.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health"))

	router.Register(r, cfg.APIPrefix, router.Auth{Tokens: tokens, Scopes: scopeCache}, router.Handlers{
		Sessions: handler.NewSessionHandler(sessionSvc, lifecycleSvc, exportSvc),
		Batches:  handler.NewBatchHandler(batchSvc, validate),
		Planning: handler.NewPlanningHandler(conflictSvc, hoursSvc, validate),
		Admin:    handler.NewAdminHandler(sweepSvc, sweepQueue, scopeCache),
		Metrics:  handler.NewMetricsHandler(metricsSvc, db),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
