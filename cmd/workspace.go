package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajvveer/careOps/internal/config"
	"github.com/rajvveer/careOps/internal/workspace"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
	}
	cmd.AddCommand(newWorkspaceProvisionCmd())
	return cmd
}

func newWorkspaceProvisionCmd() *cobra.Command {
	var (
		name          string
		timezone      string
		digestHour    int
		ownerName     string
		ownerEmail    string
		ownerPassword string
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Create a workspace and its owner account",
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

			ws, owner, err := workspace.New(st, log).Provision(ctx, workspace.ProvisionParams{
				Name:          name,
				Timezone:      timezone,
				DigestHour:    digestHour,
				OwnerName:     ownerName,
				OwnerEmail:    ownerEmail,
				OwnerPassword: ownerPassword,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created workspace %q id=%s owner=%s\n", ws.Name, ws.ID, owner.Email)
			fmt.Fprintf(os.Stdout, "it stays inactive until a channel, a service type and an availability window exist\n")
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "workspace name")
	c.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone for local-time rules")
	c.Flags().IntVar(&digestHour, "digest-hour", 8, "local hour (0-23) the daily digest goes out")
	c.Flags().StringVar(&ownerName, "owner-name", "", "owner display name")
	c.Flags().StringVar(&ownerEmail, "owner-email", "", "owner login email")
	c.Flags().StringVar(&ownerPassword, "owner-password", "", "owner password")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("owner-email")
	_ = c.MarkFlagRequired("owner-password")
	return c
}
