package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/config"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		pool, err := storage.ConnectDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := storage.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		slog.Info("✅ Schema applied")
		return nil
	},
}
