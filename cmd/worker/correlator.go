package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/db"
	"github.com/Eiffelllll/Activiti/internal/definition"
	"github.com/Eiffelllll/Activiti/internal/event"
	"github.com/Eiffelllll/Activiti/internal/kafka"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/metrics"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/Eiffelllll/Activiti/internal/service/correlation"
	"github.com/Eiffelllll/Activiti/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var correlatorCmd = &cobra.Command{
	Use:   "correlator",
	Short: "Consume delivered messages and resume waiting executions",
	RunE:  runCorrelator,
}

func runCorrelator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	registry, err := definition.Open(cfg.Definitions.Path)
	if err != nil {
		return err
	}

	dbx, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	subscriptionsRepo := repository.NewSubscriptionsRepository(dbx)
	executionsRepo := repository.NewExecutionsRepository(dbx)
	notifications := event.NewOutboxDispatcher(repository.NewOutboxRepository(dbx), cfg.Kafka.WaitingTopic, cfg.Notifications.Enabled)
	svc := correlation.New(
		command.NewExecutor(dbx, subscriptionsRepo, executionsRepo, notifications),
		executionsRepo,
		subscriptionsRepo,
		registry,
	)

	kcfg := kafka.DeliveredConfig(cfg.Kafka)
	consumer := kafka.NewConsumerFromConfig(kcfg)
	defer consumer.Close()

	w := worker.NewCorrelatorKafka(consumer, svc, cfg.Correlator.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("correlator started",
		zap.String("topic", kcfg.Topic),
		zap.String("group", kcfg.GroupID),
		zap.Int("workers", w.Workers),
		zap.Int("catch_points", registry.Len()),
	)
	return w.Run(ctx)
}
