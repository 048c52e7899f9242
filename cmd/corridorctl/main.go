package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"corridor-platform/internal/app"
	"corridor-platform/internal/cli"
	"corridor-platform/internal/config"
	"corridor-platform/internal/logging"
)

func main() {
	logger := logging.NewLoggerWithService("corridorctl")
	config.LoadEnv(logger)

	open := func(ctx context.Context) (*cli.Deps, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		a, err := app.New(ctx, cfg, logger, nil)
		if err != nil {
			return nil, nil, err
		}
		return &cli.Deps{
			Shapefiles: a.Shapefiles,
			Priority:   a.Priority,
			Migrator:   a.Store,
		}, a.Close, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
