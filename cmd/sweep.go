package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajvveer/careOps/internal/config"
	"github.com/rajvveer/careOps/internal/forms"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/sweep"
)

// newSweepCmd runs one sweep pass and exits, for cron-style deployments and
// for poking a job by hand. The in-store guards make re-runs harmless.
func newSweepCmd() *cobra.Command {
	var job string

	c := &cobra.Command{
		Use:   "sweep",
		Short: "Run one background sweep pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx := context.Background()
			st, closeStore, err := openStore(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer closeStore()

			outbox := notify.NewOutbox(st, log, notify.Defaults{
				Email:    cfg.Email,
				WhatsApp: cfg.WhatsApp,
				TextGen:  cfg.TextGen,
			})
			tokens := forms.NewTokens(cfg.FormHashKey, cfg.FormBlockKey, cfg.BaseURL)
			runner := sweep.New(st, outbox, forms.New(st, outbox, tokens, log), sweep.DefaultIntervals(), log)

			switch job {
			case "reminders":
				return runner.SweepReminders(ctx)
			case "overdue":
				return runner.SweepOverdueForms(ctx)
			case "inventory":
				return runner.SweepLowInventory(ctx)
			case "digests":
				return runner.SweepDigests(ctx)
			case "all":
				for name, fn := range map[string]func(context.Context) error{
					"reminders": runner.SweepReminders,
					"overdue":   runner.SweepOverdueForms,
					"inventory": runner.SweepLowInventory,
					"digests":   runner.SweepDigests,
				} {
					if err := fn(ctx); err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
				}
				return nil
			default:
				return fmt.Errorf("unknown --job %q (want reminders, overdue, inventory, digests or all)", job)
			}
		},
	}

	c.Flags().StringVar(&job, "job", "all", "which sweep to run")
	return c
}
