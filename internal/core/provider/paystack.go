package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/domain"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/money"
	"github.com/agbanzy/Spendly-v4--sub000/internal/core/region"
)

const paystackAPI = "https://api.paystack.co"

// Paystack talks to the Paystack REST API: JSON requests, hosted checkout
// pages, and transfers that require a pre-created recipient object.
type Paystack struct {
	secretKey string
	baseURL   string
	hc        *http.Client
}

func NewPaystack(secretKey string) *Paystack {
	return &Paystack{
		secretKey: secretKey,
		baseURL:   paystackAPI,
		hc:        newHTTPClient(),
	}
}

func (p *Paystack) Name() domain.Provider { return domain.ProviderPaystack }

// paystackEnvelope is the uniform {status, message, data} wrapper Paystack
// puts around every response.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) call(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &domain.ProviderError{Provider: domain.ProviderPaystack, Op: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return &domain.ProviderError{Provider: domain.ProviderPaystack, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: domain.ProviderPaystack, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.ProviderError{Provider: domain.ProviderPaystack, Op: op, Err: err}
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &domain.ProviderError{
			Provider: domain.ProviderPaystack, Op: op,
			Err: fmt.Errorf("unexpected response (%d): %w", resp.StatusCode, err),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return &domain.ProviderError{
			Provider: domain.ProviderPaystack, Op: op,
			Err: fmt.Errorf("%s (%d)", env.Message, resp.StatusCode),
		}
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &domain.ProviderError{Provider: domain.ProviderPaystack, Op: op, Err: err}
		}
	}
	return nil
}

func (p *Paystack) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency domain.Currency, countryCode string, metadata map[string]string) (*IntentResult, error) {
	if err := validateRequest(domain.ProviderPaystack, amount, currency); err != nil {
		return nil, err
	}
	email := metadata["email"]
	if email == "" {
		return nil, &domain.ValidationError{Field: "email", Reason: "is required to initialize a paystack transaction"}
	}

	reference := uuid.NewString()
	body := map[string]any{
		"email":     email,
		"amount":    money.ToMinor(amount),
		"currency":  currency,
		"reference": reference,
		"metadata":  metadata,
	}
	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := p.call(ctx, "create_payment_intent", http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return nil, err
	}

	return &IntentResult{
		Provider:         domain.ProviderPaystack,
		Reference:        out.Reference,
		AuthorizationURL: out.AuthorizationURL,
		Amount:           amount,
		Currency:         currency,
	}, nil
}

// InitiateTransfer first creates a transfer recipient, then moves balance to
// it. Terminal status only ever arrives via webhook.
func (p *Paystack) InitiateTransfer(ctx context.Context, amount decimal.Decimal, recipient domain.Recipient, countryCode string, reason string) (*TransferResult, error) {
	currency := region.Resolve(countryCode).Currency
	if err := validateRequest(domain.ProviderPaystack, amount, currency); err != nil {
		return nil, err
	}
	if recipient.AccountNumber == "" || recipient.BankCode == "" {
		return nil, &domain.ValidationError{Field: "recipient", Reason: "account number and bank code are required"}
	}

	var created struct {
		RecipientCode string `json:"recipient_code"`
	}
	err := p.call(ctx, "initiate_transfer", http.MethodPost, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           recipient.Name,
		"account_number": recipient.AccountNumber,
		"bank_code":      recipient.BankCode,
		"currency":       currency,
	}, &created)
	if err != nil {
		return nil, err
	}

	var out struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
	}
	err = p.call(ctx, "initiate_transfer", http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    money.ToMinor(amount),
		"recipient": created.RecipientCode,
		"currency":  currency,
		"reason":    reason,
		"reference": uuid.NewString(),
	}, &out)
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		Provider:  domain.ProviderPaystack,
		Reference: out.TransferCode,
		Status:    out.Status,
		Amount:    money.FromMinor(out.Amount),
		Currency:  domain.Currency(strings.ToUpper(out.Currency)),
	}, nil
}

func (p *Paystack) VerifyPayment(ctx context.Context, reference string) (*VerificationResult, error) {
	var out struct {
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Currency  string          `json:"currency"`
		Metadata  json.RawMessage `json:"metadata"`
	}
	if err := p.call(ctx, "verify_payment", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &VerificationResult{
		Reference: out.Reference,
		Paid:      out.Status == "success",
		Status:    out.Status,
		Amount:    money.FromMinor(out.Amount),
		Currency:  domain.Currency(strings.ToUpper(out.Currency)),
		Metadata:  decodeMetadata(out.Metadata),
	}, nil
}

// CreateVirtualAccount creates a customer and a dedicated NUBAN for them.
func (p *Paystack) CreateVirtualAccount(ctx context.Context, customer Customer) (*VirtualAccountResult, error) {
	if customer.Email == "" {
		return nil, &domain.ValidationError{Field: "email", Reason: "is required"}
	}

	var cust struct {
		CustomerCode string `json:"customer_code"`
	}
	err := p.call(ctx, "create_virtual_account", http.MethodPost, "/customer", map[string]any{
		"email":      customer.Email,
		"first_name": customer.FirstName,
		"last_name":  customer.LastName,
		"phone":      customer.Phone,
	}, &cust)
	if err != nil {
		return nil, err
	}

	var out struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		Active        bool   `json:"active"`
		Bank          struct {
			Name string `json:"name"`
		} `json:"bank"`
	}
	err = p.call(ctx, "create_virtual_account", http.MethodPost, "/dedicated_account", map[string]any{
		"customer":       cust.CustomerCode,
		"preferred_bank": "wema-bank",
	}, &out)
	if err != nil {
		return nil, err
	}

	return &VirtualAccountResult{
		Provider:      domain.ProviderPaystack,
		CustomerCode:  cust.CustomerCode,
		AccountNumber: out.AccountNumber,
		AccountName:   out.AccountName,
		BankName:      out.Bank.Name,
		Active:        out.Active,
	}, nil
}

func (p *Paystack) GetBalance(ctx context.Context, countryCode string) ([]Balance, error) {
	var out []struct {
		Currency string `json:"currency"`
		Balance  int64  `json:"balance"`
	}
	if err := p.call(ctx, "get_balance", http.MethodGet, "/balance", nil, &out); err != nil {
		return nil, err
	}
	balances := make([]Balance, 0, len(out))
	for _, b := range out {
		balances = append(balances, Balance{
			Currency: domain.Currency(strings.ToUpper(b.Currency)),
			Amount:   money.FromMinor(b.Balance),
		})
	}
	return balances, nil
}

// VerifyWebhook checks the x-paystack-signature header: HMAC-SHA512 of the
// raw body keyed with the secret key.
func (p *Paystack) VerifyWebhook(rawBody []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return domain.ErrSignatureInvalid
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

func (p *Paystack) ParseWebhook(rawBody []byte) (*domain.WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference    string          `json:"reference"`
			TransferCode string          `json:"transfer_code"`
			Amount       int64           `json:"amount"`
			Currency     string          `json:"currency"`
			Status       string          `json:"status"`
			Metadata     json.RawMessage `json:"metadata"`
			Customer     struct {
				CustomerCode string `json:"customer_code"`
			} `json:"customer"`
			DedicatedAccount struct {
				AccountNumber string `json:"account_number"`
				Bank          struct {
					Name string `json:"name"`
				} `json:"bank"`
			} `json:"dedicated_account"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("parse paystack webhook: %w", err)
	}

	data := payload.Data
	event := &domain.WebhookEvent{
		Provider:  domain.ProviderPaystack,
		RawType:   payload.Event,
		Reference: data.Reference,
		Amount:    money.FromMinor(data.Amount),
		Currency:  domain.Currency(strings.ToUpper(data.Currency)),
		Metadata:  decodeMetadata(data.Metadata),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}

	switch payload.Event {
	case "charge.success":
		event.Type = domain.EventChargeSucceeded
	case "transfer.success":
		event.Type = domain.EventTransferSuccess
		event.Reference = data.TransferCode
	case "transfer.failed":
		event.Type = domain.EventTransferFailed
		event.Reference = data.TransferCode
	case "transfer.reversed":
		event.Type = domain.EventTransferReversed
		event.Reference = data.TransferCode
	case "dedicatedaccount.assign.success":
		event.Type = domain.EventAccountAssigned
		event.Reference = data.Customer.CustomerCode
		event.Metadata["customer_code"] = data.Customer.CustomerCode
		event.Metadata["account_number"] = data.DedicatedAccount.AccountNumber
		event.Metadata["bank_name"] = data.DedicatedAccount.Bank.Name
	case "customeridentification.success":
		event.Type = domain.EventIdentityVerified
		event.Reference = data.Customer.CustomerCode
		event.Metadata["customer_code"] = data.Customer.CustomerCode
	default:
		event.Type = domain.EventUnknown
	}
	return event, nil
}

// decodeMetadata tolerates Paystack metadata being an object, a JSON string,
// or absent, and flattens scalar values to strings.
func decodeMetadata(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		var asString string
		if json.Unmarshal(raw, &asString) != nil || asString == "" {
			return nil
		}
		if json.Unmarshal([]byte(asString), &generic) != nil {
			return nil
		}
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = decimal.NewFromFloat(val).String()
		case bool:
			if val {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		}
	}
	return out
}
