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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/cx-tal-miterani/train-booking-system/internal/catalog"
	"github.com/cx-tal-miterani/train-booking-system/internal/config"
	"github.com/cx-tal-miterani/train-booking-system/internal/database"
	"github.com/cx-tal-miterani/train-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/train-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/order"
	"github.com/cx-tal-miterani/train-booking-system/internal/router"
	"github.com/cx-tal-miterani/train-booking-system/internal/service"
	"github.com/cx-tal-miterani/train-booking-system/internal/websocket"
)

const sweepInterval = time.Minute

func main() {
	envFile := pflag.String("env-file", ".env", "optional env file to load before reading the environment")
	port := pflag.String("port", "", "HTTP port (overrides PORT)")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.New(cfg.LogLevel)
	log.SetAsDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Server failed")
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	loc := cfg.Booking.Location()

	// Database
	pool, err := database.Connect(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := database.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	if cfg.Database.Seed {
		n, err := repo.Seed(ctx, time.Now().In(loc), cfg.Database.SeedDays, loc)
		if err != nil {
			return err
		}
		log.Info("Catalog seeded", "schedules", n)
	}

	// Catalog and seat holds
	var gw catalog.Gateway = catalog.NewDBGateway(repo, loc)
	var holder inventory.Holder
	var cache *catalog.CachedGateway
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		rh := inventory.NewRedisHolder(rdb, cfg.Redis.KeyPrefix)
		if err := rh.Preload(ctx); err != nil {
			return err
		}
		holder = rh
		cache = catalog.NewCachedGateway(gw, rdb, cfg.Redis.CacheTTL, cfg.Redis.KeyPrefix, log)
		gw = cache
		log.Info("Connected to Redis", "addr", cfg.Redis.Addr)
	} else {
		holder = inventory.NewMemoryHolder()
		log.Warn("REDIS_ADDR not set; seat holds of other processes are not visible")
	}

	// Temporal
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(log.Logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create Temporal client: %w", err)
	}
	defer tc.Close()
	log.Info("Connected to Temporal", "host", cfg.Temporal.HostPort)

	orders := order.NewTemporalGateway(tc, order.TemporalConfig{
		TaskQueue:          cfg.Temporal.TaskQueue,
		PaymentBaseURL:     cfg.Payment.BaseURL,
		HoldFor:            cfg.Payment.HoldFor,
		MaxPaymentAttempts: cfg.Payment.MaxAttempts,
	})

	// Services
	hub := websocket.NewHub(log, cfg.Server.AllowedOrigins...)
	svc := service.NewBookingService(gw, catalog.NewOccupancy(gw, holder), orders, hub, log, service.Options{
		SessionTTL:     cfg.Booking.SessionTTL,
		SearchDebounce: cfg.Booking.SearchDebounce,
		Location:       loc,
	})
	hub.OnBroadcast(func(scheduleID string) {
		svc.RefreshOccupancy(ctx, scheduleID)
	})
	if cache != nil {
		hub.OnBroadcast(func(string) {
			if err := cache.Invalidate(ctx); err != nil {
				log.WithError(err).Warn("Failed to invalidate catalog cache")
			}
		})
	}

	h := handlers.NewHandler(svc, log)
	r := router.SetupRouter(h, hub, log, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		svc.RunSweeper(gctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		log.Info("API server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
