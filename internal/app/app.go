// Package app wires the configuration, storage and services of the platform.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"corridor-platform/internal/auth"
	"corridor-platform/internal/cache"
	"corridor-platform/internal/clients"
	"corridor-platform/internal/config"
	"corridor-platform/internal/email"
	"corridor-platform/internal/handlers"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/monitoring"
	"corridor-platform/internal/services"
	"corridor-platform/internal/store"
)

const (
	clientRetries    = 3
	clientRetryDelay = 500 * time.Millisecond
)

// App holds the connections and services shared by the binaries
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *monitoring.MetricsCollector

	DB    *sql.DB
	Store *store.Store
	Redis *goredis.Client
	Cache *cache.LayerCache
	Staff *auth.Staff

	Maps       *services.MapService
	Priority   *services.PriorityService
	Shapefiles *services.ShapefileService
	Gardens    *services.GardenService
	Species    *services.SpeciesService
	Pages      *services.PageService
	Documents  *services.DocumentService
}

// New connects to Postgres and, when configured, Redis and builds every
// service. metrics may be nil.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, metrics *monitoring.MetricsCollector) (*App, error) {
	dbCfg := store.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	dbCfg.MaxOpenConns = cfg.MaxOpenConns
	db, err := store.Connect(dbCfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		DB:      db,
		Store:   store.New(db),
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, layers will not be cached")
		} else {
			a.Redis = client
		}
	}
	var redisClient goredis.UniversalClient
	if a.Redis != nil {
		redisClient = a.Redis
	}
	a.Cache = cache.New(redisClient, cfg.LayerCacheTTL, a.cacheHooks(), logger)

	mailer, err := email.NewMailer(email.NewSMTPSender(cfg.SMTP), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("error creating mailer: %w", err)
	}
	if metrics != nil {
		mailer.OnSend = metrics.ObserveEmail
	}

	inat := clients.NewINaturalist(cfg.INatBaseURL, clients.WithRetry(clientRetries, clientRetryDelay))
	wiki := clients.NewWikipedia(cfg.WikipediaURL, clients.WithRetry(clientRetries, clientRetryDelay))

	a.Staff = auth.NewStaff(cfg.StaffUsers, cfg.JWTSecret)
	a.Maps = services.NewMapService(a.Store, a.Cache, cfg.Layers, cfg.MapboxAPIKey, logger)
	a.Priority = services.NewPriorityService(a.Store, a.Cache, cfg.Layers, logger)
	a.Shapefiles = services.NewShapefileService(a.Store, a.Cache, cfg.MediaRoot, logger)
	if metrics != nil {
		a.Shapefiles.Observe = metrics.ObserveShapefile
	}
	a.Gardens = services.NewGardenService(a.Store, mailer, a.Cache, cfg.Layers, cfg.PublicBaseURL, logger)
	a.Species = services.NewSpeciesService(a.Store, inat, wiki, cfg.MediaRoot, logger)
	a.Pages = services.NewPageService(a.Store, logger)
	a.Documents = services.NewDocumentService(a.Store, cfg.MediaRoot, logger)
	return a, nil
}

func (a *App) cacheHooks() cache.MetricsHooks {
	if a.Metrics == nil {
		return cache.MetricsHooks{}
	}
	requests := a.Metrics.LayerCacheRequests
	return cache.MetricsHooks{
		OnHit:   func() { requests.WithLabelValues("hit").Inc() },
		OnMiss:  func() { requests.WithLabelValues("miss").Inc() },
		OnError: func() { requests.WithLabelValues("error").Inc() },
	}
}

// redisPinger adapts the Redis client to monitoring.Pinger
type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// HealthChecker reports the database, and Redis when it is connected
func (a *App) HealthChecker(service, version string) *monitoring.HealthChecker {
	hc := monitoring.NewHealthChecker(service, version)
	hc.AddCheck("database", monitoring.PingHealthCheck("database", a.Store, false))
	var redis monitoring.Pinger
	if a.Redis != nil {
		redis = redisPinger{client: a.Redis}
	}
	hc.AddCheck("redis", monitoring.PingHealthCheck("redis", redis, true))
	return hc
}

// Handlers builds the HTTP handlers over the services
func (a *App) Handlers() handlers.Handlers {
	return handlers.Handlers{
		Maps:       handlers.NewMapHandler(a.Maps),
		Gardens:    handlers.NewGardenHandler(a.Gardens),
		Pages:      handlers.NewPageHandler(a.Pages),
		Shapefiles: handlers.NewShapefileHandler(a.Shapefiles),
		Documents:  handlers.NewDocumentHandler(a.Documents, a.Species),
		Species:    handlers.NewSpeciesHandler(a.Species),
		Priority:   handlers.NewPriorityHandler(a.Priority),
		Site:       handlers.NewSiteHandler(a.Store, a.Staff),
	}
}

// Close releases the Redis and database connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close database")
	}
}
