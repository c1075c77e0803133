package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/shopspring/decimal"
)

// Client is the payment provider surface used by the settlement pipeline.
// Resource references are opaque strings (URIs for the HTTP provider).
type Client interface {
	Name() string
	Authorize(ctx context.Context) error
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
	GetTransfer(ctx context.Context, ref string) (*TransferResult, error)
	CancelTransfer(ctx context.Context, ref string) (bool, error)
	GetFundingSource(ctx context.Context, ref string) (*FundingSourceResult, error)
	CreateFundingSource(ctx context.Context, req FundingSourceRequest) (string, error)
	InitiateMicroDeposits(ctx context.Context, ref string) error
	VerifyMicroDeposits(ctx context.Context, ref string, amount1, amount2 decimal.Decimal) error
}

type TransferRequest struct {
	SourceURI      string
	DestinationURI string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type TransferResult struct {
	Ref      string          `json:"ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Created  time.Time       `json:"created"`
}

type FundingSourceRequest struct {
	CustomerURI     string
	RoutingNumber   string
	AccountNumber   string
	BankAccountType string
	Name            string
}

type FundingSourceResult struct {
	Ref     string `json:"ref"`
	Status  string `json:"status"`
	Name    string `json:"name"`
	Removed bool   `json:"removed"`
}

// Verified reports whether money can be sent to this funding source.
func (f *FundingSourceResult) Verified() bool {
	return f != nil && !f.Removed && strings.EqualFold(f.Status, "verified")
}

type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// RequestError is a structured rejection returned by the provider.
type RequestError struct {
	StatusCode  int          `json:"status_code"`
	Code        string       `json:"code"`
	Message     string       `json:"message"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("provider error %d %s: %s", e.StatusCode, e.Code, e.Message)
	for _, fe := range e.FieldErrors {
		msg += fmt.Sprintf("; %s %s", fe.Path, fe.Message)
	}
	return msg
}

// Temporary reports whether the same request may succeed later.
func (e *RequestError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// New selects the client for the configured environment.
func New(cfg config.ProviderConfig) (Client, error) {
	switch cfg.Environment {
	case config.ProviderEnvProduction, config.ProviderEnvSandbox:
		return NewHTTPClient(cfg.Environment, cfg), nil
	case config.ProviderEnvMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider environment %q", cfg.Environment)
	}
}
