package main

import (
	"github.com/spf13/cobra"

	"github.com/telemacho-dev/pressgen/config"
	"github.com/telemacho-dev/pressgen/internal/store"
)

func migrateCmd() *cobra.Command {
	var dir, direction string
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			return store.Migrate(dir, dsn, direction, steps)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "file://migrations", "migrations source")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}
