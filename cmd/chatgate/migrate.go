package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/memohai/chatgate/internal/db"
	"github.com/memohai/chatgate/internal/logger"
)

type migrateOptions struct {
	ConfigPath string
}

func newMigrateCmd() *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.Disabled {
				return errors.New("postgres is disabled in the config")
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			return db.Migrate(logger.L, cfg.Postgres)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "config file (default $CONFIG_PATH or config.toml)")
	return cmd
}
