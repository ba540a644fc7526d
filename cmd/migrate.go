package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Eiffelllll/Activiti/internal/db"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var withClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		sqlPath := filepath.Join("migrations", "001_init.sql")
		sqlBytes, err := os.ReadFile(sqlPath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", sqlPath, err)
		}

		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		if _, err := sqlDB.Exec(string(sqlBytes)); err != nil {
			_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
			return fmt.Errorf("exec migration: %w", err)
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}
		logger.Log.Info("mysql migration complete", zap.String("file", sqlPath))

		if !withClickHouse {
			return nil
		}

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		chPath := filepath.Join("migrations", "clickhouse", "001_init.sql")
		chBytes, err := os.ReadFile(chPath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", chPath, err)
		}
		// the clickhouse driver runs one statement per call
		for _, stmt := range splitStatements(string(chBytes)) {
			stmt = strings.ReplaceAll(stmt, "{brokers}", strings.Join(cfg.Kafka.Brokers, ","))
			stmt = strings.ReplaceAll(stmt, "{waiting_topic}", cfg.Kafka.WaitingTopic)
			if _, err := chDB.Exec(stmt); err != nil {
				return fmt.Errorf("exec clickhouse migration: %w", err)
			}
		}
		logger.Log.Info("clickhouse migration complete", zap.String("file", chPath))
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&withClickHouse, "clickhouse", false, "also create the ClickHouse report tables")
}

func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
