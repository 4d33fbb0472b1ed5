package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/server"
	"github.com/BaSui01/ragflow/internal/telemetry"

	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	seed := fs.String("seed", "", "JSON file of documents to load into the index at startup")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting RAGFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx := context.Background()
	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := otelProviders.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if *seed != "" {
		if _, err := app.Seed(ctx, *seed); err != nil {
			app.Close()
			return err
		}
	}

	mgr := server.NewManager(newRouter(app, cfg), server.ConfigFromServer(cfg.Server), logger)
	mgr.OnShutdown("app", func(context.Context) error {
		app.Close()
		return nil
	})
	if err := mgr.Run(ctx); err != nil {
		// Run 未能启动时钩子不会执行
		app.Close()
		return err
	}

	logger.Info("RAGFlow stopped")
	return nil
}

// newRouter 注册路由并构建中间件链
func newRouter(app *App, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	handlers.NewAskHandler(app.Session, app.logger).Register(mux)
	app.Health.Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, app.metrics.Handler())
	}

	return Chain(mux,
		Recovery(app.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(app.metrics),
		RequestLogger(app.logger),
		Timeout(cfg.Server.WriteTimeout),
	)
}
