package handler

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/region"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/security"
)

type AccountHandler struct {
	Repo *storage.AccountRepository
}

type CreateAccountRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
}

// CreateAccount registers an owner and provisions a wallet in the currency
// their region routes to.
func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid account body", "error", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Name == "" || req.Email == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Name and email are required"})
	}

	owner, err := h.Repo.CreateOwner(c.Context(), req.Name, req.Email)
	if err != nil {
		slog.Error("Failed to create owner", "error", err, "email", req.Email)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create account"})
	}

	cfg := region.Resolve(req.CountryCode)
	walletID, err := h.Repo.CreateWallet(c.Context(), owner.ID, string(cfg.Currency))
	if err != nil {
		slog.Error("Failed to provision wallet", "error", err, "owner", owner.ID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not provision wallet"})
	}

	slog.Info("✅ Account created", "id", owner.ID, "currency", cfg.Currency)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"owner":     owner,
		"wallet_id": walletID,
		"currency":  cfg.Currency,
		"provider":  cfg.Provider,
	})
}

func (h *AccountHandler) GenerateKey(c *fiber.Ctx) error {
	accountUUID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid Account ID format"})
	}

	realKey, keyHash, err := security.GenerateAPIKey()
	if err != nil {
		slog.Error("Crypto error generating key", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Crypto error"})
	}

	if err := h.Repo.SaveAPIKey(c.Context(), accountUUID, keyHash, "sp_live_"); err != nil {
		slog.Error("Failed to save API key", "error", err, "account_id", accountUUID)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save key"})
	}

	slog.Info("🔑 API key generated", "account_id", accountUUID)

	// Shown once, never again.
	return c.JSON(fiber.Map{
		"api_key": realKey,
		"warning": "Save this now! We won't show it again.",
	})
}
