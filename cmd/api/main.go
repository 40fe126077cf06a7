package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/gymflow/internal/app"
	"github.com/timmy/gymflow/internal/config"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/supervisor"
)

func main() {
	// CONFIG_PATH selects the config file in deployments.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := logger.New(cfg.Log.Options("gymflow"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize engine")
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sup := supervisor.New("gymflow", supervisor.DefaultConfig())
	sup.Add(engine.Queue)
	sup.Add(engine.Warmer)
	sup.Add(supervisor.NewHTTPService(srv, 10*time.Second))

	appLogger.WithFields(logger.Fields{
		"port":           cfg.Server.Port,
		"mode":           cfg.Server.Mode,
		"vector_backend": engine.Index.Name(),
		"warm_interval":  cfg.Cache.WarmInterval.String(),
	}).Info("Starting API server")

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.WithError(err).Error("Supervisor stopped with error")
	}
	appLogger.Info("Server exited")
}
