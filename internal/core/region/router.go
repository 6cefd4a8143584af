// Package region maps a customer's country to the currency and payment
// provider that serve it. The table is data, not code: adding a market is a
// new entry, never a new branch.
package region

import (
	"strings"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
)

// Config is the routing decision for one market.
type Config struct {
	Countries []string
	Currency  domain.Currency
	Provider  domain.Provider
	Symbol    string
}

// DefaultRegion is what unmapped country codes resolve to. A missing mapping
// must never block a payment flow, only pick the home-market default.
var DefaultRegion = Config{
	Countries: []string{"US"},
	Currency:  domain.USD,
	Provider:  domain.ProviderStripe,
	Symbol:    "$",
}

var regions = []Config{
	{Countries: []string{"US"}, Currency: domain.USD, Provider: domain.ProviderStripe, Symbol: "$"},
	{Countries: []string{"CA"}, Currency: domain.CAD, Provider: domain.ProviderStripe, Symbol: "CA$"},
	{Countries: []string{"GB"}, Currency: domain.GBP, Provider: domain.ProviderStripe, Symbol: "£"},
	{Countries: []string{"AU"}, Currency: domain.AUD, Provider: domain.ProviderStripe, Symbol: "A$"},
	{
		Countries: []string{
			"AT", "BE", "DE", "ES", "FI", "FR", "IE", "IT", "NL", "PT",
		},
		Currency: domain.EUR, Provider: domain.ProviderStripe, Symbol: "€",
	},
	{Countries: []string{"NG"}, Currency: domain.NGN, Provider: domain.ProviderPaystack, Symbol: "₦"},
	{Countries: []string{"GH"}, Currency: domain.GHS, Provider: domain.ProviderPaystack, Symbol: "GH₵"},
	{Countries: []string{"ZA"}, Currency: domain.ZAR, Provider: domain.ProviderPaystack, Symbol: "R"},
	{Countries: []string{"KE"}, Currency: domain.KES, Provider: domain.ProviderPaystack, Symbol: "KSh"},
}

var byCountry = func() map[string]Config {
	m := make(map[string]Config)
	for _, r := range regions {
		for _, c := range r.Countries {
			m[c] = r
		}
	}
	return m
}()

// Resolve returns the region config for a 2-letter country code. Pure and
// total: case-insensitive, and unmapped codes fall back to DefaultRegion.
func Resolve(countryCode string) Config {
	if r, ok := byCountry[strings.ToUpper(strings.TrimSpace(countryCode))]; ok {
		return r
	}
	return DefaultRegion
}
