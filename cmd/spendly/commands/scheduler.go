package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/config"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/notifications"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/provider"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/scheduler"
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

// schedulerCmd runs exactly one recurrence tick and exits. Operators use it
// to re-fire after fixing a failed schedule without waiting for the interval.
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run one recurrence tick and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		pool, err := storage.ConnectDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		adapters := provider.Registry{
			domain.ProviderStripe:   provider.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
			domain.ProviderPaystack: provider.NewPaystack(cfg.PaystackSecretKey),
		}

		ledgerRepo := storage.NewLedgerRepository(pool)
		scheduleRepo := storage.NewScheduleRepository(pool)
		jobRepo := storage.NewNotificationJobRepository(pool)
		notifier := notifications.NewQueueNotifier(jobRepo, cfg.NotifyWebhookURL)

		sched := scheduler.New(ledgerRepo, scheduleRepo, adapters, notifier)
		if err := sched.RunOnce(cmd.Context()); err != nil {
			return err
		}
		slog.Info("✅ Tick completed")
		return nil
	},
}
