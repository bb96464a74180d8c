package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/oab-process-sync/internal/config"
	pgstore "github.com/JakeFAU/oab-process-sync/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtimeFrom(cmd.Context())
			if err != nil {
				return err
			}
			db := rt.cfg.Database
			if db.Backend != config.BackendPostgres {
				return fmt.Errorf("migrate requires database.backend=%s", config.BackendPostgres)
			}
			pool, err := pgstore.NewPool(cmd.Context(), pgstore.PoolConfig{DSN: db.DSN, MaxConns: 1})
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := pgstore.Migrate(cmd.Context(), pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rt.logger.Info("database schema up to date")
			return nil
		},
	}
}
