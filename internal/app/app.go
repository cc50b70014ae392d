package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/prodpulse/prodpulse-backend/internal/cache"
	"github.com/prodpulse/prodpulse-backend/internal/db"
	"github.com/prodpulse/prodpulse-backend/internal/logger"
	"github.com/prodpulse/prodpulse-backend/internal/observability"
	"github.com/prodpulse/prodpulse-backend/internal/server"
)

const serviceName = "prodpulse-backend"

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cache    cache.Cache
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := pg.DB()

	// Redis is optional; without it dashboard reads fall back to a
	// process-local cache.
	var c cache.Cache
	if os.Getenv("REDIS_ADDR") != "" {
		c, err = cache.NewRedisCache(log)
		if err != nil {
			log.Warn("redis unavailable, using in-memory cache", "error", err)
			c = cache.NewMemoryCache()
		}
	} else {
		c = cache.NewMemoryCache()
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, c)
	handlerset := wireHandlers(log, serviceset)
	middlewareset := wireMiddleware(log)

	router := server.NewRouter(server.RouterConfig{
		ServiceName:         serviceName,
		AllowOrigins:        cfg.AllowOrigins,
		HealthHandler:       handlerset.Health,
		JobHandler:          handlerset.Job,
		DashboardHandler:    handlerset.Dashboard,
		PrincipalMiddleware: middlewareset.Principal,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cache:        c,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background ingestion workers.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Services.Workers.Start(ctx)
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		a.Services.Workers.Wait()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
