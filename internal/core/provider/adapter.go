// Package provider normalizes two very different payment processors behind
// one capability interface. Stripe confirms payments synchronously through a
// client secret; Paystack redirects to a hosted page and confirms purely via
// webhook or a server-side verify call. Everything above this package works
// in major units and never branches on provider identity.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/region"
)

// Adapter is the provider-agnostic capability surface. Implementations do no
// retries of their own: initiate-style operations are not safely retriable
// without a client idempotency key, so retry policy belongs to the caller.
type Adapter interface {
	Name() domain.Provider
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency domain.Currency, countryCode string, metadata map[string]string) (*IntentResult, error)
	InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient domain.Recipient, countryCode string, reason string) (*TransferResult, error)
	VerifyPayment(ctx context.Context, reference string) (*VerificationResult, error)
	CreateVirtualAccount(ctx context.Context, customer Customer) (*VirtualAccountResult, error)
	GetBalance(ctx context.Context, countryCode string) ([]Balance, error)

	// VerifyWebhook checks the signature against the exact raw bytes of the
	// request body. Re-serialized JSON is never byte-stable, so callers must
	// pass the untouched payload.
	VerifyWebhook(rawBody []byte, signatureHeader string) error
	// ParseWebhook normalizes a raw provider payload into a domain event.
	ParseWebhook(rawBody []byte) (*domain.WebhookEvent, error)
}

// IntentResult is the opaque handle returned by payment initiation. Exactly
// one of ClientSecret (Stripe) or AuthorizationURL (Paystack) is set.
type IntentResult struct {
	Provider         domain.Provider `json:"provider"`
	Reference        string          `json:"reference"`
	ClientSecret     string          `json:"client_secret,omitempty"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         domain.Currency `json:"currency"`
}

// TransferResult is the handle for an initiated payout. Status here is the
// provider's immediate answer; the terminal status arrives by webhook.
type TransferResult struct {
	Provider  domain.Provider `json:"provider"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  domain.Currency `json:"currency"`
}

// VerificationResult is the server-side answer for a payment reference.
type VerificationResult struct {
	Reference string            `json:"reference"`
	Paid      bool              `json:"paid"`
	Status    string            `json:"status"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  domain.Currency   `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Customer is the minimal identity needed to provision a virtual account.
type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// VirtualAccountResult describes a provisioned collection account.
type VirtualAccountResult struct {
	Provider      domain.Provider `json:"provider"`
	CustomerCode  string          `json:"customer_code"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	BankName      string          `json:"bank_name"`
	Active        bool            `json:"active"`
}

// Balance is one currency bucket of the provider-side float.
type Balance struct {
	Currency domain.Currency `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Per-provider currency allow-lists. A currency/provider mismatch is a local
// validation failure, never a doomed API call.
var allowedCurrencies = map[domain.Provider]map[domain.Currency]bool{
	domain.ProviderStripe: {
		domain.USD: true, domain.CAD: true, domain.GBP: true,
		domain.EUR: true, domain.AUD: true,
	},
	domain.ProviderPaystack: {
		domain.NGN: true, domain.GHS: true, domain.ZAR: true, domain.KES: true,
	},
}

func validateRequest(p domain.Provider, amount decimal.Decimal, currency domain.Currency) error {
	if !amount.IsPositive() {
		return &domain.ValidationError{Field: "amount", Reason: "must be a positive amount"}
	}
	if !allowedCurrencies[p][currency] {
		return &domain.ValidationError{
			Field:  "currency",
			Reason: string(currency) + " is not supported by " + string(p),
		}
	}
	return nil
}

// Outbound provider calls are bounded; Stripe's own client defaults to ~30s.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// Registry holds the configured adapters keyed by provider.
type Registry map[domain.Provider]Adapter

// ForCountry picks the adapter serving a country via the region table.
func (r Registry) ForCountry(countryCode string) Adapter {
	return r[region.Resolve(countryCode).Provider]
}
