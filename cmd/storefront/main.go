// Команда storefront запускает REST API магазина вместе с воркерами проекции.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const envLogLevel = "STOREFRONT_LOG_LEVEL"

// setupLogger настраивает формат и уровень логирования. Пустой уровень означает info.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level = strings.TrimSpace(level)
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn(".env is present but could not be loaded")
	}
	if err := setupLogger(os.Getenv(envLogLevel)); err != nil {
		log.WithError(err).Warn("unknown log level, using info")
	}

	cfg, err := app.ConfigFromEnv(os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"search_driver":  cfg.SearchDriver,
		"build":          version.String(),
	}).Info("starting storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("storefront stopped with error")
	}

	log.Info("storefront stopped")
}
