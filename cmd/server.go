package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rajvveer/careOps/internal/automation"
	"github.com/rajvveer/careOps/internal/booking"
	"github.com/rajvveer/careOps/internal/config"
	"github.com/rajvveer/careOps/internal/crypto"
	"github.com/rajvveer/careOps/internal/db"
	"github.com/rajvveer/careOps/internal/forms"
	"github.com/rajvveer/careOps/internal/migrate"
	"github.com/rajvveer/careOps/internal/notify"
	"github.com/rajvveer/careOps/internal/store"
	"github.com/rajvveer/careOps/internal/store/memory"
	"github.com/rajvveer/careOps/internal/store/postgres"
	"github.com/rajvveer/careOps/internal/sweep"
	"github.com/rajvveer/careOps/internal/web"
)

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// openStore picks the backend from config. The memory store is for dev and
// demos; postgres is the real thing and runs migrations when asked.
func openStore(ctx context.Context, cfg config.Config, runMigrations bool) (store.Store, func(), error) {
	if cfg.Store == "memory" {
		return memory.New(), func() {}, nil
	}

	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	if runMigrations {
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, nil, err
		}
	}

	box, err := crypto.New(cfg.CredEncKey)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	return postgres.New(d, box), d.Close, nil
}

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API and the background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, closeStore, err := openStore(ctx, cfg, migrateUp)
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
			formsSvc := forms.New(st, outbox, tokens, log)
			dispatcher := automation.New(st, outbox, formsSvc, log)
			defer dispatcher.Close()

			runner := sweep.New(st, outbox, formsSvc, sweep.Intervals{
				Reminders: cfg.ReminderInterval,
				Overdue:   cfg.OverdueInterval,
				Inventory: cfg.InventoryInterval,
				Digest:    cfg.DigestInterval,
			}, log)
			runnerDone := make(chan struct{})
			go func() {
				defer close(runnerDone)
				runner.Run(ctx)
			}()

			srv := &web.Server{
				Store:      st,
				Bookings:   booking.New(st, log),
				Forms:      formsSvc,
				Outbox:     outbox,
				Dispatcher: dispatcher,
				Log:        log,
			}
			err = web.Start(ctx, cfg.ListenAddr, srv.Routes(), log)
			cancel()
			<-runnerDone
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
