package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/cx-tal-miterani/train-booking-system/internal/activities"
	"github.com/cx-tal-miterani/train-booking-system/internal/config"
	"github.com/cx-tal-miterani/train-booking-system/internal/database"
	"github.com/cx-tal-miterani/train-booking-system/internal/inventory"
	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/internal/notify"
	"github.com/cx-tal-miterani/train-booking-system/internal/workflows"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional env file to load before reading the environment")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := logger.New(cfg.LogLevel)
	log.SetAsDefault()

	if err := run(context.Background(), cfg, log); err != nil {
		log.WithError(err).Error("Worker failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// Connect to database
	log.Info("Connecting to database...")
	pool, err := database.Connect(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()
	repo := database.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	log.Info("Connected to database")

	// Seat holds
	var holder inventory.Holder
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
	} else {
		holder = inventory.NewMemoryHolder()
		log.Warn("REDIS_ADDR not set; seat holds live in this worker only")
	}

	// Booking events
	var publisher notify.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			RetryMax: cfg.Kafka.RetryMax,
		}, log)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp
		log.Info("Publishing booking events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	} else {
		publisher = notify.NewLogPublisher(log)
		log.Warn("KAFKA_BROKERS not set; booking events are only logged")
	}

	// Connect to Temporal
	log.Info("Connecting to Temporal...", "host", cfg.Temporal.HostPort)
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(log.Logger),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	defer c.Close()
	log.Info("Connected to Temporal")

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.OrderWorkflow)
	w.RegisterActivity(activities.New(repo, holder, publisher,
		activities.WithPaymentFailureRate(cfg.Payment.FailureRate),
		activities.WithPaymentDelay(cfg.Payment.Delay),
	))

	log.Info("Starting Temporal worker...", "taskQueue", cfg.Temporal.TaskQueue)
	return w.Run(worker.InterruptCh())
}
