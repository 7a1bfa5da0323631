package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/app"
	"github.com/isdm-app/isdm-api/internal/service"
	"github.com/isdm-app/isdm-api/pkg/config"
	"github.com/isdm-app/isdm-api/pkg/export"
	"github.com/isdm-app/isdm-api/pkg/logger"
)

// @title ISDM API
// @version 1.0.0
// @description Student directory of the institute
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resources := app.NewResources(cfg, logr)
	defer resources.Close()

	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	store, err := resources.OpenStore(ctx)
	if err != nil {
		logr.Fatal("open student store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	store = resources.WithCache(ctx, store, metrics)

	verifier, accounts, err := resources.Verifier(ctx, validate)
	if err != nil {
		logr.Fatal("init token verifier", zap.String("provider", cfg.Auth.Provider), zap.Error(err))
	}

	directory := service.NewDirectoryService(store, metrics, logr)
	if err := directory.Start(ctx); err != nil {
		logr.Fatal("subscribe to students", zap.Error(err))
	}
	defer directory.Close()

	exports := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter(), logr)
	exportJobs, err := resources.ExportJobs(ctx, directory, exports)
	if err != nil {
		logr.Fatal("start export workers", zap.String("dir", cfg.Export.Dir), zap.Error(err))
	}

	router := app.NewRouter(app.Dependencies{
		Config:     cfg,
		Logger:     logr,
		Metrics:    metrics,
		Store:      store,
		Students:   service.NewStudentService(store, validate, metrics, logr),
		Directory:  directory,
		Exports:    exports,
		ExportJobs: exportJobs,
		Verifier:   verifier,
		Accounts:   accounts,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Live sessions are hijacked connections; they end with the process context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver, "auth", cfg.Auth.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
