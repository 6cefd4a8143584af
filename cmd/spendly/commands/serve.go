package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/spf13/cobra"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/handler"
	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/middleware"
	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/config"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/notifications"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/provider"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/scheduler"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/webhook"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/worker"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, webhook endpoint, scheduler and notification worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		dbPool, err := storage.ConnectDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("❌ Database connection failed", "error", err)
			return err
		}

		// Repos
		accountRepo := storage.NewAccountRepository(dbPool)
		ledgerRepo := storage.NewLedgerRepository(dbPool)
		scheduleRepo := storage.NewScheduleRepository(dbPool)
		jobRepo := storage.NewNotificationJobRepository(dbPool)

		// Provider adapters, selected per region at call time
		adapters := provider.Registry{
			domain.ProviderStripe:   provider.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
			domain.ProviderPaystack: provider.NewPaystack(cfg.PaystackSecretKey),
		}

		notifier := notifications.NewQueueNotifier(jobRepo, cfg.NotifyWebhookURL)
		processor := webhook.NewProcessor(ledgerRepo, adapters, notifier)
		sched := scheduler.New(ledgerRepo, scheduleRepo, adapters, notifier)

		// Handlers
		accountHandler := &handler.AccountHandler{Repo: accountRepo}
		paymentHandler := &handler.PaymentHandler{Ledger: ledgerRepo, Adapters: adapters}
		walletHandler := &handler.WalletHandler{Ledger: ledgerRepo}
		webhookHandler := &handler.WebhookHandler{Processor: processor}
		schedulerHandler := &handler.SchedulerHandler{Scheduler: sched}

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})
		app.Use(cors.New())

		// Provider webhooks: raw body in, signature checked inside.
		app.Post("/webhooks/:provider", webhookHandler.Handle)

		api := app.Group("/v1")

		// Public
		api.Post("/accounts", accountHandler.CreateAccount)
		api.Post("/accounts/:id/keys", accountHandler.GenerateKey)

		// Protected
		private := api.Use(middleware.Protected(dbPool))
		private.Post("/deposits", paymentHandler.InitiateDeposit)
		private.Get("/deposits/:reference/verify", paymentHandler.VerifyPayment)
		private.Post("/transfers", middleware.Idempotency(dbPool), paymentHandler.InitiateTransfer)
		private.Post("/virtual-accounts", paymentHandler.CreateVirtualAccount)
		private.Get("/balance", paymentHandler.GetBalance)
		private.Get("/wallets/:owner/:currency", walletHandler.GetWallet)
		private.Get("/wallets/:owner/history", walletHandler.GetHistory)
		private.Post("/scheduler/run", schedulerHandler.RunOnce)

		// Background loops
		sched.Start(cfg.SchedulerInterval)
		stopWorker := worker.StartNotificationWorker(jobRepo, cfg.WebhookSecret)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		go func() {
			slog.Info("🚀 Server starting", "env", cfg.Env, "port", cfg.Port)
			if err := app.Listen(":" + cfg.Port); err != nil {
				slog.Error("Server forced to shutdown", "error", err)
			}
		}()

		<-stop
		slog.Info("🛑 Shutting down server...")

		sched.Stop()
		stopWorker()

		if err := app.Shutdown(); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}

		dbPool.Close()
		slog.Info("👋 Server exited successfully")
		return nil
	},
}
