package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/money"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/region"
)

const stripeAPI = "https://api.stripe.com"

// Stripe talks to the Stripe REST API: form-encoded requests, payment
// intents with client secrets, payouts against tokenized bank accounts.
type Stripe struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	hc            *http.Client
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return &Stripe{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       stripeAPI,
		hc:            newHTTPClient(),
	}
}

func (s *Stripe) Name() domain.Provider { return domain.ProviderStripe }

type stripeError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// call posts a form-encoded request (or GET when form is nil) and decodes the
// JSON response into out.
func (s *Stripe) call(ctx context.Context, op, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return &domain.ProviderError{Provider: domain.ProviderStripe, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: domain.ProviderStripe, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.ProviderError{Provider: domain.ProviderStripe, Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var se stripeError
		if json.Unmarshal(raw, &se) == nil && se.Error.Message != "" {
			return &domain.ProviderError{
				Provider: domain.ProviderStripe, Op: op,
				Err: fmt.Errorf("%s (%d)", se.Error.Message, resp.StatusCode),
			}
		}
		return &domain.ProviderError{
			Provider: domain.ProviderStripe, Op: op,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.ProviderError{Provider: domain.ProviderStripe, Op: op, Err: err}
		}
	}
	return nil
}

func (s *Stripe) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency domain.Currency, countryCode string, metadata map[string]string) (*IntentResult, error) {
	if err := validateRequest(domain.ProviderStripe, amount, currency); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(money.ToMinor(amount), 10))
	form.Set("currency", strings.ToLower(string(currency)))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
	}
	if err := s.call(ctx, "create_payment_intent", http.MethodPost, "/v1/payment_intents", form, &out); err != nil {
		return nil, err
	}

	return &IntentResult{
		Provider:     domain.ProviderStripe,
		Reference:    out.ID,
		ClientSecret: out.ClientSecret,
		Amount:       money.FromMinor(out.Amount),
		Currency:     domain.Currency(strings.ToUpper(out.Currency)),
	}, nil
}

func (s *Stripe) InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient domain.Recipient, countryCode string, reason string) (*TransferResult, error) {
	if err := validateRequest(domain.ProviderStripe, amount, region.Resolve(countryCode).Currency); err != nil {
		return nil, err
	}
	if recipient.BankToken == "" {
		return nil, &domain.ValidationError{Field: "recipient", Reason: "bank token is required for stripe payouts"}
	}
	currency := region.Resolve(countryCode).Currency

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(money.ToMinor(amount), 10))
	form.Set("currency", strings.ToLower(string(currency)))
	form.Set("destination", recipient.BankToken)
	if reason != "" {
		form.Set("description", reason)
	}

	var out struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := s.call(ctx, "initiate_transfer", http.MethodPost, "/v1/payouts", form, &out); err != nil {
		return nil, err
	}

	return &TransferResult{
		Provider:  domain.ProviderStripe,
		Reference: out.ID,
		Status:    out.Status,
		Amount:    money.FromMinor(out.Amount),
		Currency:  domain.Currency(strings.ToUpper(out.Currency)),
	}, nil
}

func (s *Stripe) VerifyPayment(ctx context.Context, reference string) (*VerificationResult, error) {
	var out struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Amount   int64             `json:"amount"`
		Currency string            `json:"currency"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := s.call(ctx, "verify_payment", http.MethodGet, "/v1/payment_intents/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &VerificationResult{
		Reference: out.ID,
		Paid:      out.Status == "succeeded",
		Status:    out.Status,
		Amount:    money.FromMinor(out.Amount),
		Currency:  domain.Currency(strings.ToUpper(out.Currency)),
		Metadata:  out.Metadata,
	}, nil
}

// CreateVirtualAccount provisions a customer plus bank-transfer funding
// instructions, which is Stripe's shape of a dedicated collection account.
func (s *Stripe) CreateVirtualAccount(ctx context.Context, customer Customer) (*VirtualAccountResult, error) {
	if customer.Email == "" {
		return nil, &domain.ValidationError{Field: "email", Reason: "is required"}
	}

	form := url.Values{}
	form.Set("name", strings.TrimSpace(customer.FirstName+" "+customer.LastName))
	form.Set("email", customer.Email)
	var cust struct {
		ID string `json:"id"`
	}
	if err := s.call(ctx, "create_virtual_account", http.MethodPost, "/v1/customers", form, &cust); err != nil {
		return nil, err
	}

	fi := url.Values{}
	fi.Set("funding_type", "bank_transfer")
	fi.Set("currency", "usd")
	fi.Set("bank_transfer[type]", "us_bank_transfer")
	var out struct {
		BankTransfer struct {
			FinancialAddresses []struct {
				ABA struct {
					AccountNumber string `json:"account_number"`
					BankName      string `json:"bank_name"`
				} `json:"aba"`
			} `json:"financial_addresses"`
		} `json:"bank_transfer"`
	}
	if err := s.call(ctx, "create_virtual_account", http.MethodPost, "/v1/customers/"+url.PathEscape(cust.ID)+"/funding_instructions", fi, &out); err != nil {
		return nil, err
	}

	res := &VirtualAccountResult{
		Provider:     domain.ProviderStripe,
		CustomerCode: cust.ID,
		AccountName:  strings.TrimSpace(customer.FirstName + " " + customer.LastName),
		Active:       true,
	}
	if len(out.BankTransfer.FinancialAddresses) > 0 {
		res.AccountNumber = out.BankTransfer.FinancialAddresses[0].ABA.AccountNumber
		res.BankName = out.BankTransfer.FinancialAddresses[0].ABA.BankName
	}
	return res, nil
}

func (s *Stripe) GetBalance(ctx context.Context, countryCode string) ([]Balance, error) {
	var out struct {
		Available []struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"available"`
	}
	if err := s.call(ctx, "get_balance", http.MethodGet, "/v1/balance", nil, &out); err != nil {
		return nil, err
	}
	balances := make([]Balance, 0, len(out.Available))
	for _, b := range out.Available {
		balances = append(balances, Balance{
			Currency: domain.Currency(strings.ToUpper(b.Currency)),
			Amount:   money.FromMinor(b.Amount),
		})
	}
	return balances, nil
}

// VerifyWebhook checks a Stripe-Signature header (t=<unix>,v1=<hex>) against
// HMAC-SHA256 of "<t>.<raw body>".
func (s *Stripe) VerifyWebhook(rawBody []byte, signatureHeader string) error {
	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signatureHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, c := range candidates {
		if hmac.Equal([]byte(expected), []byte(c)) {
			return nil
		}
	}
	return domain.ErrSignatureInvalid
}

func (s *Stripe) ParseWebhook(rawBody []byte) (*domain.WebhookEvent, error) {
	var payload struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string            `json:"id"`
				Amount   int64             `json:"amount"`
				Currency string            `json:"currency"`
				Status   string            `json:"status"`
				Metadata map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("parse stripe webhook: %w", err)
	}

	obj := payload.Data.Object
	event := &domain.WebhookEvent{
		Provider:  domain.ProviderStripe,
		RawType:   payload.Type,
		Reference: obj.ID,
		Amount:    money.FromMinor(obj.Amount),
		Currency:  domain.Currency(strings.ToUpper(obj.Currency)),
		Metadata:  obj.Metadata,
	}

	switch payload.Type {
	case "payment_intent.succeeded":
		event.Type = domain.EventChargeSucceeded
	case "payout.paid":
		event.Type = domain.EventTransferSuccess
	case "payout.failed":
		event.Type = domain.EventTransferFailed
	case "payout.canceled":
		event.Type = domain.EventTransferReversed
	case "identity.verification_session.verified":
		event.Type = domain.EventIdentityVerified
	default:
		event.Type = domain.EventUnknown
	}
	return event, nil
}
