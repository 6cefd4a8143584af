package handler

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/agbanzy/Spendly-v4--sub000/internal/adapter/storage"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

type WalletHandler struct {
	Ledger *storage.LedgerRepository
}

// GetWallet returns the current balance for an owner in one currency.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	ownerID, err := uuid.Parse(c.Params("owner"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}
	currency := domain.Currency(c.Params("currency"))

	wallet, err := h.Ledger.GetWallet(c.Context(), ownerID, currency)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Wallet not found"})
	}
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Lookup failed"})
	}
	return c.JSON(wallet)
}

// GetHistory returns the most recent wallet entries for an owner.
func (h *WalletHandler) GetHistory(c *fiber.Ctx) error {
	ownerID, err := uuid.Parse(c.Params("owner"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid owner ID"})
	}

	history, err := h.Ledger.GetHistory(c.Context(), ownerID, c.QueryInt("limit", 10))
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch history"})
	}
	return c.JSON(fiber.Map{"entries": history})
}
