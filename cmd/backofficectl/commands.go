package main

import (
	"fmt"
	"log/slog"
	"time"

	"backoffice/internal/app"
	"backoffice/internal/auth"
	"backoffice/internal/cache"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type cliEnv struct {
	cfg *config.Config
	log *slog.Logger
	db  *gorm.DB
}

func newRootCmd() *cobra.Command {
	rt := &cliEnv{}

	root := &cobra.Command{
		Use:           "backofficectl",
		Short:         "Maintenance commands for the payments back office",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.log = logger.New(cfg.LogLevel, cfg.ReleaseMode)

			db, err := database.NewConnection(cfg.DSN(), cfg.ReleaseMode)
			if err != nil {
				return err
			}
			rt.db = db
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(rt), newSeedCmd(rt), newTransfersCmd(rt))
	return root
}

func newMigrateCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(rt.db, rt.log); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func newSeedCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the default permissions and system roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.services().Roles.SeedDefaultRolesAndPermissions(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "roles and permissions seeded")
			return nil
		},
	}
}

func newTransfersCmd(rt *cliEnv) *cobra.Command {
	transfers := &cobra.Command{
		Use:   "transfers",
		Short: "Tax block transfer maintenance",
	}

	var at string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Apply every pending transfer whose cutoff has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at value: %w", err)
				}
				now = parsed
			}

			applied, err := rt.services().Assignments.ApplyDueTransfers(cmd.Context(), now)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d transfer(s)\n", applied)
			return err
		},
	}
	apply.Flags().StringVar(&at, "at", "", "apply transfers due at this RFC3339 time instead of now")

	transfers.AddCommand(apply)
	return transfers
}

// services builds the service graph without the websocket hub or metrics
func (rt *cliEnv) services() *app.Services {
	return app.NewServices(app.Dependencies{
		DB:              rt.db,
		PermissionCache: cache.NewMemory(time.Minute),
		Tokens:          auth.NewTokenManager(rt.cfg.JWTSecret, rt.cfg.AccessTokenTTL),
		RefreshTokenTTL: rt.cfg.RefreshTokenTTL,
	})
}
