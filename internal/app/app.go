package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/config"
	"github.com/itorigin/site/internal/database"
	"github.com/itorigin/site/internal/middleware"
	pkgcron "github.com/itorigin/site/internal/pkg/cron"
	"github.com/itorigin/site/internal/pkg/metrics"
	pkgredis "github.com/itorigin/site/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "itorigin-site"

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	db      *gorm.DB
	rc      *pkgredis.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
	sched   *pkgcron.Scheduler
	cancel  context.CancelFunc
}

// New initializes the application: DB → Redis → metrics → routes → cron.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := applyRuntimeSettings(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis: %w", err)
	}

	m, metricsHandler, err := metrics.Setup(serviceName)
	if err != nil {
		cancel()
		_ = rc.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger, "/metrics", apiPrefix+"/health"))
	router.Use(middleware.Metrics(m))
	router.Use(cors.New(corsConfig(cfg)))
	router.GET("/metrics", gin.WrapH(metricsHandler))

	a := &App{
		cfg:     cfg,
		router:  router,
		db:      db,
		rc:      rc,
		metrics: m,
		logger:  logger,
		sched:   pkgcron.New(logger),
		cancel:  cancel,
	}
	campaigns := a.registerRoutes(loc)
	registerCronJobs(a.sched, campaigns)
	a.sched.Start(ctx)

	return a, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and closes connections.
func (a *App) Shutdown() {
	a.cancel()
	a.sched.Wait()
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
