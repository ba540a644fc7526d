package worker

import (
	"github.com/Eiffelllll/Activiti/internal/config"
	"github.com/Eiffelllll/Activiti/internal/logger"
	"github.com/spf13/cobra"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(correlatorCmd)
	cmd.AddCommand(relayCmd)

	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}
