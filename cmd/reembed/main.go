package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/gymflow/internal/app"
	"github.com/timmy/gymflow/internal/config"
	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	target := flag.String("target", "classes", "What to reembed: classes or members")
	limit := flag.Int("limit", 500, "Maximum number of records to reembed (0 for no limit)")
	force := flag.Bool("force", false, "Regenerate every embedding, not only missing or stale ones")
	warm := flag.Bool("warm", false, "Run one cache warming cycle afterwards")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	// Batch runs log to stdout only; the rotated file belongs to the server.
	appLogger := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "gymflow-reembed",
	})
	logger.SetDefaultLogger(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize engine")
	}
	defer engine.Close()

	// Embedding writes and recommendation logs go through the queue; it is
	// drained before exit.
	queueCtx, stopQueue := context.WithCancel(ctx)
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		_ = engine.Queue.Serve(queueCtx)
	}()
	defer func() {
		stopQueue()
		<-queueDone
	}()

	appLogger.WithFields(logger.Fields{
		"target": *target,
		"limit":  *limit,
		"force":  *force,
		"warm":   *warm,
	}).Info("Starting reembed")

	stats, err := engine.Reembed.Run(ctx, service.ReembedTarget(*target), *limit, &service.ReembedOptions{Force: *force})
	if err != nil {
		appLogger.WithError(err).Error("Reembed failed")
		return 1
	}

	if *warm {
		status, err := engine.Warmer.RunOnce(ctx)
		if err != nil {
			appLogger.WithError(err).Error("Cache warming failed")
		} else {
			appLogger.WithFields(logger.Fields{
				"members": status.Members,
				"warmed":  status.Warmed,
				"failed":  status.Failed,
			}).Info("Cache warming completed")
		}
	}

	appLogger.WithFields(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
	}).Info("Reembed completed")
	if stats.FailedItems > 0 {
		return 1
	}
	return 0
}
