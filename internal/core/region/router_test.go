package region

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		country  string
		currency domain.Currency
		provider domain.Provider
	}{
		{"US routes to Stripe USD", "US", domain.USD, domain.ProviderStripe},
		{"GB routes to Stripe GBP", "GB", domain.GBP, domain.ProviderStripe},
		{"DE routes to Stripe EUR", "DE", domain.EUR, domain.ProviderStripe},
		{"NG routes to Paystack NGN", "NG", domain.NGN, domain.ProviderPaystack},
		{"KE routes to Paystack KES", "KE", domain.KES, domain.ProviderPaystack},
		{"lowercase code still resolves", "ng", domain.NGN, domain.ProviderPaystack},
		{"padded code still resolves", " gh ", domain.GHS, domain.ProviderPaystack},
		{"unmapped code falls back to default", "ZZ", domain.USD, domain.ProviderStripe},
		{"empty code falls back to default", "", domain.USD, domain.ProviderStripe},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Resolve(tc.country)
			assert.Equal(t, tc.currency, cfg.Currency)
			assert.Equal(t, tc.provider, cfg.Provider)
		})
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	// Total function: whatever comes in, a usable config comes out.
	for _, code := range []string{"XX", "123", "NGN", "??"} {
		cfg := Resolve(code)
		assert.NotEmpty(t, cfg.Currency, "country %q", code)
		assert.NotEmpty(t, cfg.Provider, "country %q", code)
	}
}
