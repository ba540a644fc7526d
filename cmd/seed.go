package cmd

import (
	"context"
	"fmt"

	"github.com/Eiffelllll/Activiti/internal/command"
	"github.com/Eiffelllll/Activiti/internal/db"
	"github.com/Eiffelllll/Activiti/internal/definition"
	"github.com/Eiffelllll/Activiti/internal/event"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/Eiffelllll/Activiti/internal/model"
	"github.com/Eiffelllll/Activiti/internal/repository"
	"github.com/Eiffelllll/Activiti/internal/service/correlation"
	"github.com/Eiffelllll/Activiti/internal/util"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedPerCatchPoint int
	seedEnter         bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo executions positioned at every defined catch point",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry, err := definition.Open(cfg.Definitions.Path)
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		executionsRepo := repository.NewExecutionsRepository(sqlDB)
		ids, err := seedExecutions(cmd.Context(), sqlDB, executionsRepo, registry.ActivityIDs(), seedPerCatchPoint)
		if err != nil {
			return err
		}
		logger.Log.Info("seeded executions", zap.Int("count", len(ids)))

		if !seedEnter {
			return nil
		}

		subscriptionsRepo := repository.NewSubscriptionsRepository(sqlDB)
		notifications := event.NewOutboxDispatcher(repository.NewOutboxRepository(sqlDB), cfg.Kafka.WaitingTopic, cfg.Notifications.Enabled)
		svc := correlation.New(
			command.NewExecutor(sqlDB, subscriptionsRepo, executionsRepo, notifications),
			executionsRepo,
			subscriptionsRepo,
			registry,
		)
		for _, id := range ids {
			if err := svc.Enter(cmd.Context(), id); err != nil {
				return fmt.Errorf("enter %s: %w", id, err)
			}
		}
		logger.Log.Info("seeded executions are waiting", zap.Int("count", len(ids)))
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedPerCatchPoint, "per-catch-point", 3, "executions to create per catch point")
	seedCmd.Flags().BoolVar(&seedEnter, "enter", true, "enter the catch point after inserting")
}

// seedExecutions inserts n executions per activity, each in a process
// instance of its own, with variables the sample definitions refer to.
func seedExecutions(ctx context.Context, dbx *sqlx.DB, repo repository.ExecutionsRepository, activities []string, n int) ([]string, error) {
	tx, err := dbx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var ids []string
	for _, activityID := range activities {
		for i := 1; i <= n; i++ {
			exec := &model.Execution{
				ID:                util.NewID(),
				ProcessInstanceID: util.NewID(),
				ActivityID:        activityID,
				State:             model.ExecutionActive,
				Variables: model.Variables{
					"orderId":   fmt.Sprintf("A-%d", i),
					"requestId": fmt.Sprintf("R-%d", i),
				},
			}
			if err := repo.Insert(ctx, tx, exec); err != nil {
				return nil, fmt.Errorf("insert execution at %s: %w", activityID, err)
			}
			ids = append(ids, exec.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit executions: %w", err)
	}
	return ids, nil
}
