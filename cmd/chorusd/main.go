// Command chorusd is the long-running worker daemon. It loads
// configuration, builds the pipeline, and polls the queue until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"chorus/internal/config"
	"chorus/internal/daemon"
	"chorus/internal/logging"
)

func main() {
	// A local .env is a development convenience; absence is normal.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := os.Getenv("CHORUS_CONFIG")
	cfg, resolvedPath, exists, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "chorusd.log"),
		},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if exists {
		logger.Info("configuration loaded", logging.String("path", resolvedPath))
	} else {
		logger.Info("no config file found, using defaults and environment",
			logging.String("searched", resolvedPath))
	}

	d, err := daemon.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("worker initialization failed", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
