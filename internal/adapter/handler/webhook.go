package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/webhook"
)

type WebhookHandler struct {
	Processor *webhook.Processor
}

// Handle receives POST /webhooks/:provider. The body bytes go to the
// processor untouched: signature verification needs the exact payload the
// provider signed, and fiber's Body() hands us just that.
//
// Response contract: 200 accepted-or-already-processed, 401 bad signature,
// 5xx internal failure (provider will re-POST).
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	rawBody := c.Body()

	signature := c.Get("X-Provider-Signature")
	if signature == "" {
		switch domain.Provider(providerName) {
		case domain.ProviderPaystack:
			signature = c.Get("x-paystack-signature")
		case domain.ProviderStripe:
			signature = c.Get("Stripe-Signature")
		}
	}

	err := h.Processor.Handle(c.Context(), providerName, rawBody, signature)
	if errors.Is(err, domain.ErrSignatureInvalid) {
		slog.Warn("webhook rejected: bad signature", "provider", providerName)
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
	}
	if err != nil {
		slog.Error("webhook processing error", "provider", providerName, "error", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "processing failed"})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
