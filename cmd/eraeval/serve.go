package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eraeval/internal/errors"
)

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API over HTTP",
		Long: `Serve POST /api/v1/evaluate, /api/v1/neutralize and /api/v1/penalize,
plus /healthz and /metrics. When DATABASE_URL is set, reports can be saved and
fetched under /api/v1/reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if port != "" {
				a.config().Server.Port = port
			}
			if err := a.container.Connect(ctx); err != nil {
				return err
			}
			defer a.container.Shutdown(context.Background())

			return a.container.Server().Run(ctx, ":"+a.config().Server.Port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from config)")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the report storage schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.config().Database.URL == "" {
				return errors.ConfigInvalid("DATABASE_URL is required")
			}
			if err := a.container.Connect(cmd.Context()); err != nil {
				return err
			}
			defer a.container.Shutdown(cmd.Context())
			cmd.Println("report storage schema is up to date")
			return nil
		},
	}
}
