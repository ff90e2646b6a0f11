package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobrunner/internal/appconfig"
	"github.com/nextlevelbuilder/jobrunner/internal/dbconn"
)

// migrateCmd applies the Postgres schema (job_configurations_v2,
// job_execution_history_v2, user_connections) without starting the
// scheduler or HTTP API.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema (no-op for the file backend)",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend != appconfig.BackendPostgres {
				fmt.Println("store backend is", cfg.StoreBackend, "- nothing to migrate")
				return nil
			}

			db, err := dbconn.Open(cfg.DSN(), dbconn.PoolConfig{MaxOpenConns: cfg.DBMaxOpenConns, MaxIdleConns: cfg.DBMaxIdleConns})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := dbconn.Migrate(c.Context(), db); err != nil {
				return err
			}

			version, err := dbconn.CurrentVersion(c.Context(), db)
			if err != nil {
				return err
			}
			fmt.Println("schema at version", version)
			return nil
		},
	}
}
