package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/corpsim/corpsim/internal/config"
	"github.com/corpsim/corpsim/internal/database"
	"github.com/corpsim/corpsim/internal/httpapi"
	"github.com/corpsim/corpsim/internal/invariant"
	"github.com/corpsim/corpsim/internal/lease"
	"github.com/corpsim/corpsim/internal/market"
	"github.com/corpsim/corpsim/internal/pricecache"
	"github.com/corpsim/corpsim/internal/queue"
	"github.com/corpsim/corpsim/internal/store/postgres"
	"github.com/corpsim/corpsim/internal/stream"
	"github.com/corpsim/corpsim/internal/tick"
	"github.com/corpsim/corpsim/internal/version"
	"github.com/corpsim/corpsim/internal/worker"
)

func main() {
	configPath := flag.String("config", "configs/worker.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting worker",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// .env is optional; config files expand ${VAR} from the environment
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env file")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ownerID := cfg.Instance.ID
	if ownerID == "" {
		ownerID = uuid.NewString()
	}

	logger.Info("configuration loaded",
		"instance_id", ownerID,
		"tick_interval", cfg.Sim.TickInterval,
		"invariant_policy", cfg.Sim.InvariantPolicy,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st := postgres.New(pool)
	if err := st.Ensure(ctx); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	leases := lease.NewManager(st, ownerID, logger)
	mkt := market.NewEngine(logger)
	engine := tick.NewEngine(st, leases, mkt, tick.Config{
		ProcessorTTL: cfg.Lease.ProcessorTTL,
	}, logger)
	scanner := invariant.NewScanner(st, logger)

	retry := tick.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	q := queue.NewKafka(queue.KafkaConfig{
		Brokers: cfg.Queue.Brokers,
		Topic:   cfg.Queue.TickTopic(),
		GroupID: cfg.Queue.GroupID,
	}, logger)
	defer q.Close()

	var prices *pricecache.Cache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		prices = pricecache.New(client, logger)
		logger.Info("price cache connected", "addr", cfg.Redis.Addr)
	}

	hub := stream.NewHub(logger)
	streamH := stream.NewHandler(hub, logger)

	coord := worker.New(worker.Config{
		TickInterval:          cfg.Sim.TickInterval,
		MaxTicksPerRun:        cfg.Sim.MaxTicksPerRun,
		ScanEveryTicks:        cfg.Sim.ScanEveryTicks,
		ScanIssueLimit:        cfg.Sim.ScanIssueLimit,
		JournalRetentionTicks: cfg.Sim.JournalRetentionTicks,
		Policy:                worker.Policy(cfg.Sim.InvariantPolicy),
		SchedulerTTL:          cfg.Lease.SchedulerTTL,
		Heartbeat:             cfg.Lease.Heartbeat,
		Retry:                 retry,
	}, st, leases, engine, scanner, q, prices, hub, logger)

	api := httpapi.New(st, engine, scanner, hub, streamH, retry, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: api.Handler(),
	}
	go func() {
		logger.Info("starting http server", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := coord.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}

	logger.Info("worker running",
		"instance_id", ownerID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	if err := coord.Stop(shutdownCtx); err != nil {
		logger.Error("coordinator shutdown error", "error", err)
	}

	logger.Info("worker stopped")
}
