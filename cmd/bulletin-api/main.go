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
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-bulletin/api/swagger"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/repository"
	"github.com/noah-isme/sma-bulletin/internal/service"
	"github.com/noah-isme/sma-bulletin/pkg/cache"
	"github.com/noah-isme/sma-bulletin/pkg/config"
	"github.com/noah-isme/sma-bulletin/pkg/database"
	"github.com/noah-isme/sma-bulletin/pkg/logger"
	"github.com/noah-isme/sma-bulletin/pkg/storage"
)

// @title School Bulletins API
// @version 1.0.0
// @description Report-card aggregation, rendering and batch generation
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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("bulletin api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, class statistics will not be cached", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	gradeStore := repository.NewGradeStoreRepository(db)
	sessions := repository.NewSessionRepository(db)
	batches := repository.NewBatchRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, "bulletins", logr)
		defer redisRepo.Close() //nolint:errcheck
		cacheRepo = redisRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Bulletins.StatsCacheTTL, logr, cfg.Bulletins.StatsCacheEnabled && cacheRepo != nil)

	agg := service.NewAggregator(logr)
	stats := service.NewClassStatsService(gradeStore, agg, cacheSvc, cfg.Bulletins.StatsCacheTTL, logger.Component(logr, "class_stats"))
	builder := service.NewBulletinBuilder(gradeStore, stats, agg, service.BuilderConfig{
		SchoolName:     cfg.Bulletins.SchoolName,
		HeadmasterName: cfg.Bulletins.HeadmasterName,
	}, logger.Component(logr, "builder"))

	files, err := storage.NewLocalStorage(cfg.Bulletins.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare bulletin storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Bulletins.SignedURLSecret, cfg.Bulletins.SignedURLTTL)
	format := models.BulletinFormat(cfg.Bulletins.Format)

	interrupted, err := batches.MarkInterrupted(ctx, time.Now().UTC())
	if err != nil {
		logr.Warn("failed to close interrupted batches", zap.Error(err))
	} else if interrupted > 0 {
		logr.Info("batches interrupted by previous shutdown closed", zap.Int64("count", interrupted))
	}

	queue := service.NewGenerationQueue(builder, files, gradeStore, batches, metrics, service.QueueConfig{
		Workers:       cfg.Bulletins.WorkerConcurrency,
		Retries:       cfg.Bulletins.WorkerRetries,
		RetryDelay:    cfg.Bulletins.RetryDelay,
		DefaultFormat: format,
	}, logger.Component(logr, "generation_queue"))
	queue.Start(ctx)
	defer queue.Stop()

	exports := service.NewBulletinExportService(builder, stats, gradeStore, files, signer, metrics, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		DefaultFormat:   format,
		ResultTTL:       cfg.Bulletins.ResultTTL,
		CleanupSchedule: cfg.Bulletins.CleanupSchedule,
	}, logger.Component(logr, "exports"))
	scheduler, err := exports.StartCleanup()
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	router := newRouter(cfg, logr, routeDeps{
		db:       db,
		metrics:  metrics,
		tokens:   service.NewTokenVerifier(cfg.JWT.Secret),
		validate: validate,
		exports:  exports,
		queue:    queue,
		sessions: service.NewSessionService(sessions, stats, validate, logger.Component(logr, "sessions")),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}
