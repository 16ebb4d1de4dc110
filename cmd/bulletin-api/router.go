package main

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin/internal/handler"
	"github.com/noah-isme/sma-bulletin/internal/middleware"
	"github.com/noah-isme/sma-bulletin/internal/models"
	"github.com/noah-isme/sma-bulletin/internal/service"
	"github.com/noah-isme/sma-bulletin/pkg/config"
	"github.com/noah-isme/sma-bulletin/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-bulletin/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-bulletin/pkg/middleware/requestid"
)

type routeDeps struct {
	db       handler.Pinger
	metrics  *service.MetricsService
	tokens   *service.TokenVerifier
	validate *validator.Validate
	exports  *service.BulletinExportService
	queue    *service.GenerationQueue
	sessions *service.SessionService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics, cfg.APIPrefix+"/bulletins/batches/progress/stream"))

	ops := handler.NewMetricsHandler(deps.metrics, deps.db, deps.queue)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	bulletins := handler.NewBulletinHandler(deps.exports, deps.validate, cfg.Bulletins.DefaultFolder)
	batches := handler.NewBatchHandler(deps.queue, deps.validate, cfg.Bulletins.DefaultFolder)
	sessions := handler.NewSessionHandler(deps.sessions)

	api := r.Group(cfg.APIPrefix)
	// The signed token is the credential for downloads.
	api.GET("/bulletins/download/:token", bulletins.Download)

	staff := api.Group("", middleware.JWT(deps.tokens), middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher))
	staff.GET("/bulletins/students/:id", bulletins.Preview)
	staff.POST("/bulletins/students/:id/generate", bulletins.Generate)
	staff.GET("/bulletins/classes/:id/summary", bulletins.ClassSummary)
	staff.POST("/sessions", sessions.Submit)

	staff.GET("/bulletins/batches/progress", batches.Progress)
	staff.GET("/bulletins/batches/progress/stream", batches.Stream)

	admin := api.Group("", middleware.JWT(deps.tokens), middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	admin.POST("/bulletins/batches", batches.Queue)
	admin.POST("/bulletins/batches/cancel", batches.Cancel)
	admin.GET("/bulletins/batches/:id", batches.Get)

	return r
}
