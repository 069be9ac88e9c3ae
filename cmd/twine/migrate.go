package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Long: `Apply the embedded SQL migrations, or create the DynamoDB tables
with streams and TTL enabled. Does nothing for the memory backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configFile, cmd.Flags())
			if err != nil {
				return err
			}

			b, err := openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()

			if err := b.migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema up to date", "backend", cfg.Store.Backend)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("store.backend", "memory", "record store: memory, sqlite, postgres or dynamodb")
	flags.String("store.dsn", "twine.db", "sqlite path or postgres URL")
	return cmd
}
