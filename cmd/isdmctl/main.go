package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/app"
	"github.com/isdm-app/isdm-api/internal/cli"
	"github.com/isdm-app/isdm-api/internal/service"
	"github.com/isdm-app/isdm-api/pkg/config"
	"github.com/isdm-app/isdm-api/pkg/export"
	"github.com/isdm-app/isdm-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// Keep stdout clean for command output.
	cfg.Log.Format = "console"
	if cfg.Log.Level == "" || cfg.Log.Level == "info" {
		cfg.Log.Level = "warn"
	}
	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logr))
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) int {
	resources := app.NewResources(cfg, logr)
	defer resources.Close()

	store, err := resources.OpenStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open student store: %v\n", err)
		return 1
	}
	store = resources.WithCache(ctx, store, nil)

	directory := service.NewDirectoryService(store, nil, logr)
	if err := directory.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "subscribe to students: %v\n", err)
		return 1
	}
	defer directory.Close()

	services := cli.Services{
		Students:  service.NewStudentService(store, nil, nil, logr),
		Directory: directory,
		Exports:   service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(), logr),
		Tokens:    service.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
	}
	if err := cli.Execute(ctx, services); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
