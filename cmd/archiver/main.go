package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandon99-hub/Auction/internal/archive"
	"github.com/brandon99-hub/Auction/internal/config"
	"github.com/brandon99-hub/Auction/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile})
	log.Info("starting archiver")

	db, err := archive.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer db.Close()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.InitSchema(initCtx); err != nil {
		cancelInit()
		log.WithError(err).Fatal("failed to initialize schema")
	}
	cancelInit()
	log.Info("schema ready")

	consumer, err := archive.NewConsumer(cfg.NatsURL, db, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to NATS")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		cancel()
	}()

	if err := consumer.Start(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("consumer stopped")
	}
	log.Info("stopped")
}
