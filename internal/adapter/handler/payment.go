package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/provider"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/region"
)

type PaymentHandler struct {
	Ledger   *storage.LedgerRepository
	Adapters provider.Registry
}

// errStatus maps the error taxonomy to HTTP codes: local validation is the
// caller's fault, provider failures are upstream's.
func errStatus(err error) int {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	if errors.Is(err, domain.ErrInsufficientFunds) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, domain.ErrWalletNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

type DepositRequest struct {
	OwnerID     string          `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"` // major units
	CountryCode string          `json:"country_code"`
	Email       string          `json:"email"`
}

// InitiateDeposit creates a provider payment intent and a pending deposit
// transaction. The wallet is only credited later, by the charge webhook.
func (h *PaymentHandler) InitiateDeposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid deposit body", "error", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}

	cfg := region.Resolve(req.CountryCode)
	adapter := h.Adapters[cfg.Provider]
	if adapter == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Provider not configured"})
	}

	intent, err := adapter.CreatePaymentIntent(c.Context(), req.Amount, cfg.Currency, req.CountryCode, map[string]string{
		"type":     "deposit",
		"owner_id": ownerID.String(),
		"email":    req.Email,
	})
	if err != nil {
		slog.Error("Deposit initiation failed", "owner", ownerID, "error", err)
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	tx := &domain.Transaction{
		OwnerID:     ownerID,
		Type:        domain.TxTypeDeposit,
		Amount:      req.Amount,
		Currency:    cfg.Currency,
		Status:      domain.TxStatusPending,
		Description: "Wallet deposit",
		Reference:   intent.Reference,
		Provider:    intent.Provider,
		Metadata:    map[string]string{"type": "deposit"},
	}
	if err := h.Ledger.CreateTransaction(c.Context(), tx); err != nil {
		slog.Error("Failed to record deposit transaction", "reference", intent.Reference, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not record transaction"})
	}

	slog.Info("💳 Deposit initiated", "owner", ownerID, "reference", intent.Reference, "provider", intent.Provider)
	return c.Status(http.StatusCreated).JSON(intent)
}

type TransferRequest struct {
	OwnerID     string           `json:"owner_id"`
	Amount      decimal.Decimal  `json:"amount"`
	CountryCode string           `json:"country_code"`
	Reason      string           `json:"reason"`
	Recipient   domain.Recipient `json:"recipient"`
}

// InitiateTransfer debits the owner's wallet and starts a provider payout.
// The debit happens first: if the provider call fails, the funds go straight
// back. If the transfer fails later, the transfer.failed webhook issues the
// compensating credit.
func (h *PaymentHandler) InitiateTransfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}
	if !req.Amount.IsPositive() {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Amount must be positive"})
	}

	cfg := region.Resolve(req.CountryCode)
	adapter := h.Adapters[cfg.Provider]
	if adapter == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Provider not configured"})
	}

	wallet, err := h.Ledger.GetWallet(c.Context(), ownerID, cfg.Currency)
	if err != nil {
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	ref := uuid.NewString()
	err = h.Ledger.DebitWallet(c.Context(), wallet.ID, req.Amount,
		domain.ReasonTransfer, "Transfer: "+req.Reason, ref)
	if err != nil {
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := adapter.InitiateTransfer(c.Context(), req.Amount, req.Recipient, req.CountryCode, req.Reason)
	if err != nil {
		// Provider never accepted the transfer, restore the debit now.
		if cerr := h.Ledger.CreditWallet(c.Context(), wallet.ID, req.Amount,
			domain.ReasonReversal, "Transfer not initiated", ref); cerr != nil {
			slog.Error("Failed to restore debit after initiation failure", "wallet", wallet.ID, "error", cerr)
		}
		slog.Error("Transfer initiation failed", "owner", ownerID, "error", err)
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	tx := &domain.Transaction{
		OwnerID:     ownerID,
		Type:        domain.TxTypeTransfer,
		Amount:      req.Amount,
		Currency:    cfg.Currency,
		Status:      domain.TxStatusProcessing,
		Description: req.Reason,
		Reference:   result.Reference,
		Provider:    result.Provider,
	}
	if err := h.Ledger.CreateTransaction(c.Context(), tx); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not record transaction"})
	}

	payout := &domain.Payout{
		OwnerID: ownerID,
		// The initiator was debited, so the initiator gets the compensating
		// credit if this transfer fails or reverses.
		CreditOwnerID: ownerID,
		Recipient:     req.Recipient,
		Amount:        req.Amount,
		Currency:      cfg.Currency,
		Provider:      result.Provider,
		Reference:     result.Reference,
		Status:        domain.PayoutStatusProcessing,
		Reason:        req.Reason,
	}
	if err := h.Ledger.CreatePayout(c.Context(), payout); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not record payout"})
	}

	slog.Info("💸 Transfer initiated", "owner", ownerID, "reference", result.Reference, "provider", result.Provider)
	return c.Status(http.StatusCreated).JSON(result)
}

// VerifyPayment asks the owning provider for the current state of a payment
// reference. Useful when a webhook is late and support wants an answer now.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	reference := c.Params("reference")

	tx, err := h.Ledger.GetTransactionByReference(c.Context(), reference)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Unknown reference"})
	}
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Lookup failed"})
	}

	adapter := h.Adapters[tx.Provider]
	if adapter == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Provider not configured"})
	}

	result, err := adapter.VerifyPayment(c.Context(), reference)
	if err != nil {
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}

type VirtualAccountRequest struct {
	OwnerID     string `json:"owner_id"`
	CountryCode string `json:"country_code"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

func (h *PaymentHandler) CreateVirtualAccount(c *fiber.Ctx) error {
	var req VirtualAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}

	adapter := h.Adapters.ForCountry(req.CountryCode)
	if adapter == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Provider not configured"})
	}

	result, err := adapter.CreateVirtualAccount(c.Context(), provider.Customer{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}

	status := "PENDING"
	if result.Active {
		status = "ACTIVE"
	}
	err = h.Ledger.RegisterVirtualAccount(c.Context(), result.CustomerCode, ownerID,
		result.Provider, status, result.AccountNumber, result.BankName)
	if err != nil {
		slog.Error("Failed to register virtual account", "customer_code", result.CustomerCode, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not save virtual account"})
	}

	return c.Status(http.StatusCreated).JSON(result)
}

// GetBalance returns the provider-side float for the region's provider.
func (h *PaymentHandler) GetBalance(c *fiber.Ctx) error {
	country := c.Query("country", "US")
	adapter := h.Adapters.ForCountry(country)
	if adapter == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "Provider not configured"})
	}

	balances, err := adapter.GetBalance(c.Context(), country)
	if err != nil {
		return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"balances": balances})
}
