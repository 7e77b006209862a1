package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/resibo/internal/app"
	"github.com/dukerupert/resibo/internal/bootstrap"
	"github.com/dukerupert/resibo/internal/service"
	"github.com/dukerupert/resibo/internal/worker"
)

func newRecurCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recur",
		Short: "Recurring invoice generation",
	}

	var date string
	run := &cobra.Command{
		Use:   "run",
		Short: "Generate invoices for every template due on the given date",
		Example: `  # Run for today in RECURRENCE_TIMEZONE
  resiboctl recur run

  # Catch up a missed day
  resiboctl recur run --date 2024-03-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today, err := runDate(date, time.Now(), e.cfg.Scheduler.Location)
			if err != nil {
				return err
			}

			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Recurrence.RunMonthlyRecurringInvoices(cmd.Context(), today)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	run.Flags().StringVar(&date, "date", "", "run date as YYYY-MM-DD (default: today in RECURRENCE_TIMEZONE)")

	cmd.AddCommand(run)
	return cmd
}

// runDate resolves the --date flag. An empty flag means the calendar date of
// now in loc.
func runDate(flag string, now time.Time, loc *time.Location) (time.Time, error) {
	if flag == "" {
		return now.In(loc), nil
	}
	d, err := service.ParseISODate(flag)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: %w", err)
	}
	return d, nil
}

func newOutboxCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Email outbox delivery",
	}

	var limit int
	processOnce := &cobra.Command{
		Use:   "process-once",
		Short: "Lease and deliver queued emails one at a time",
		Long: `process-once leases a single eligible entry and attempts delivery. With
--limit it repeats until the outbox is idle or the limit is reached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}

			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			counts := map[worker.Outcome]int{}
			for i := 0; i < limit; i++ {
				out := a.Worker.ProcessOnce(cmd.Context())
				counts[out]++
				if out == worker.OutcomeIdle || out == worker.OutcomeError {
					break
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent=%d retry=%d dead=%d idle=%d error=%d\n",
				counts[worker.OutcomeSent],
				counts[worker.OutcomeRetry],
				counts[worker.OutcomeDead],
				counts[worker.OutcomeIdle],
				counts[worker.OutcomeError],
			)
			if counts[worker.OutcomeError] > 0 {
				return fmt.Errorf("outbox processing stopped on a store error")
			}
			return nil
		},
	}
	processOnce.Flags().IntVar(&limit, "limit", 1, "maximum number of entries to process")

	cmd.AddCommand(processOnce)
	return cmd
}

func newMailCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mail",
		Short: "Mail transport checks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Connect to the configured mail transport and authenticate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, err := app.NewSender(e.cfg.Email, e.logger)
			if err != nil {
				return err
			}
			if err := sender.Verify(cmd.Context()); err != nil {
				return fmt.Errorf("mail transport verification failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s transport OK\n", e.cfg.Email.Provider)
			return nil
		},
	})
	return cmd
}

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), e.cfg.DatabaseUrl, e.logger)
		},
	})
	return cmd
}

func newCounterCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Invoice number counter",
	}

	var (
		prefix string
		start  int64
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the invoice counter if it does not exist",
		Long: `init seeds the single invoice counter row. --start is the last number already
used, so the next invoice is numbered start+1. An existing counter is never
changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("prefix") {
				prefix = e.cfg.Numbering.Prefix
			}
			if !cmd.Flags().Changed("start") {
				start = e.cfg.Numbering.Start
			}

			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := bootstrap.InitCounter(cmd.Context(), a.Pool, bootstrap.CounterConfig{
				Prefix:     prefix,
				LastNumber: start,
			}, e.logger)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "counter created: next number %s\n", service.FormatInvoiceNumber(prefix, start+1))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "counter already initialized")
			}
			return nil
		},
	}
	initCmd.Flags().StringVar(&prefix, "prefix", "INV", "invoice number prefix (default: INVOICE_PREFIX)")
	initCmd.Flags().Int64Var(&start, "start", 0, "last number already issued (default: INVOICE_START)")

	cmd.AddCommand(initCmd)
	return cmd
}
