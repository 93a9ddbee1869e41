package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/brandon99-hub/Auction/internal/bidding"
	"github.com/brandon99-hub/Auction/internal/broadcast"
	"github.com/brandon99-hub/Auction/internal/config"
	"github.com/brandon99-hub/Auction/internal/deposit"
	"github.com/brandon99-hub/Auction/internal/events"
	"github.com/brandon99-hub/Auction/internal/httpapi"
	"github.com/brandon99-hub/Auction/internal/notify"
	"github.com/brandon99-hub/Auction/internal/scheduler"
	"github.com/brandon99-hub/Auction/internal/store"
	"github.com/brandon99-hub/Auction/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile})
	log.Info("starting auctiond")

	// Redis backs the live auction store, the event fan-out and the deposit
	// ledger; one client is shared.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.WithError(err).Fatal("failed to connect to Redis")
	}
	cancelPing()
	defer redisClient.Close()
	log.WithField("addr", cfg.RedisAddr).Info("connected to Redis")

	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to NATS")
	}
	defer natsConn.Close()
	log.WithField("url", cfg.NatsURL).Info("connected to NATS")

	publisher, err := events.NewPublisher(redisClient, natsConn, log)
	if err != nil {
		log.WithError(err).Fatal("failed to set up event publisher")
	}

	auctionStore := store.NewRedisStoreFromClient(redisClient)
	ledger := deposit.NewRedisLedger(redisClient)
	notifier := &notify.LogDispatcher{Log: log}

	engine := bidding.NewEngine(bidding.Config{
		Store:          auctionStore,
		Ledger:         ledger,
		Publisher:      publisher,
		Notifier:       notifier,
		Log:            log,
		DepositPercent: cfg.DepositPercent,
		ServiceFee:     cfg.ServiceFee,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := broadcast.NewHub(log)
	go hub.Run()

	subscriber := broadcast.NewSubscriber(redisClient, hub, log)
	go func() {
		if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("event subscriber stopped")
		}
	}()

	sched := scheduler.New(scheduler.Config{
		Store:          auctionStore,
		Publisher:      publisher,
		Notifier:       notifier,
		Log:            log,
		Interval:       cfg.SchedulerInterval,
		ReminderLead:   cfg.ReminderLead,
		RetentionAfter: cfg.RetentionAfter,
	})
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("scheduler stopped")
		}
	}()

	apiHandler := httpapi.NewHandler(auctionStore, engine, publisher, notifier, log)
	router := apiHandler.SetupRoutes()
	broadcast.NewHandler(hub, auctionStore, engine, log).RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ServerAddr).Info("auctiond listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced to shutdown")
	}
	log.Info("stopped")
}
