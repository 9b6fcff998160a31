package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"eraeval/internal"
	"eraeval/internal/config"
	"eraeval/internal/container"
)

// app is shared by the subcommands once the root pre-run has loaded config
type app struct {
	configPath string
	container  *container.Container
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "eraeval",
		Short: "Era-partitioned evaluation and neutralization of tournament predictions",
		Long: `eraeval scores prediction columns era by era (correlation, sharpe,
drawdown, APY, MMC, feature exposure, top/bottom correlation) and post-processes
them with feature neutralization, feature penalization and standardization.

Configuration is read from defaults, an optional YAML file (--config or
ERAEVAL_CONFIG) and environment variables; a .env file is loaded when present.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(
		newEvaluateCmd(a),
		newNeutralizeCmd(a),
		newPenalizeCmd(a),
		newStandardizeCmd(a),
		newServeCmd(a),
		newMigrateCmd(a),
	)

	return rootCmd
}

func (a *app) init() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	internal.DefaultLogger.SetLevel(internal.ParseLogLevel(cfg.LogLevel))

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	a.container = c
	return nil
}

func (a *app) config() *config.Config {
	return a.container.Config
}
