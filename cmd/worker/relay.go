package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Eiffelllll/Activiti/internal/db"
	"github.com/Eiffelllll/Activiti/internal/kafka"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/metrics"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/Eiffelllll/Activiti/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Publish outbox notifications to Kafka",
	RunE:  runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	dbx, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	r := worker.NewOutboxRelay(dbx, repository.NewOutboxRepository(dbx), producer, worker.NewMicroBreakerFromConfig(cfg.Relay.Breaker))
	if cfg.Relay.BatchSize > 0 {
		r.BatchSize = cfg.Relay.BatchSize
	}
	if cfg.Relay.PollInterval > 0 {
		r.PollInterval = cfg.Relay.PollInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("outbox relay started",
		zap.Int("batch_size", r.BatchSize),
		zap.Duration("poll_interval", r.PollInterval),
	)
	return r.Run(ctx)
}
