package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/resibo/internal"
	"github.com/dukerupert/resibo/internal/app"
)

var version = "dev"

// env is filled by the root PersistentPreRunE.
type env struct {
	cfg    *internal.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "resiboctl",
		Short: "Operate recurring invoices and the email outbox",
		Long: `resiboctl runs the same jobs as the server's scheduler, once, against the
database named by DATABASE_URL. Configuration is read from the environment
and an optional .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.NewConfig()
			if err != nil {
				return fmt.Errorf("config initialization failed: %w", err)
			}
			e.cfg = cfg
			e.logger = internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(
		newRecurCmd(e),
		newOutboxCmd(e),
		newMailCmd(e),
		newMigrateCmd(e),
		newCounterCmd(e),
	)
	return root
}

// open builds the application without touching the schema.
func (e *env) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, e.cfg, e.logger, app.Options{SkipMigrations: true})
}
