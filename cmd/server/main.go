package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"corridor-platform/internal/app"
	"corridor-platform/internal/config"
	"corridor-platform/internal/handlers"
	"corridor-platform/internal/logging"
	"corridor-platform/internal/middleware"
	"corridor-platform/internal/monitoring"
	"corridor-platform/internal/server"
)

const (
	serviceName = "corridor-platform"
	AppVersion  = "1.0.0"
)

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetricsCollector(serviceName, AppVersion)
	a, err := app.New(ctx, cfg, logger, metrics)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start")
	}
	defer a.Close()

	applied, err := a.Store.Migrate(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}
	if len(applied) > 0 {
		logger.WithField("migrations", applied).Info("Database migrated")
	}

	router := server.SetupRouter(logger, metrics, a.HealthChecker(serviceName, AppVersion))
	router.Static("/media", cfg.MediaRoot)
	router.Use(middleware.ResolveSite(a.Store, logger))
	handlers.RegisterRoutes(router, a.Handlers(), a.Staff)

	logger.WithFields(logging.Fields{
		"version":     AppVersion,
		"staff_users": len(cfg.StaffUsers),
		"redis":       a.Redis != nil,
	}).Info("Starting corridor platform")

	if err := server.Start(ctx, server.DefaultConfig(serviceName, cfg.Port), router, logger); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return
	}
}
