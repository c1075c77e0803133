package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/blnkfinance/payouts/config"
	"github.com/blnkfinance/payouts/internal/request"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	acceptHeader      = "application/vnd.dwolla.v1.hal+json"
	tokenExpiryMargin = 30 * time.Second
	defaultMaxRetries = 3
)

// HTTPClient talks to the provider REST API using client-credential OAuth.
type HTTPClient struct {
	name       string
	baseURL    string
	key        string
	secret     string
	currency   string
	httpClient *http.Client
	maxRetries uint64

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewHTTPClient(name string, cfg config.ProviderConfig) *HTTPClient {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	currency := strings.ToUpper(cfg.Currency)
	if currency == "" {
		currency = config.DEFAULT_CURRENCY
	}
	return &HTTPClient{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.Key,
		secret:     cfg.Secret,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: defaultMaxRetries,
	}
}

func (c *HTTPClient) Name() string {
	return c.name
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached token, fetching a new one when close to expiry.
func (c *HTTPClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(tokenExpiryMargin).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+request.BasicAuth(c.key, c.secret))

	var tok tokenResponse
	if _, err := request.Call(c.httpClient, req, &tok); err != nil {
		return "", toRequestError(err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("provider returned an empty access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// Authorize checks the configured credentials by fetching an access token.
func (c *HTTPClient) Authorize(ctx context.Context) error {
	_, err := c.accessToken(ctx)
	return err
}

func (c *HTTPClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *HTTPClient) resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return c.baseURL + "/" + strings.TrimLeft(ref, "/")
}

func (c *HTTPClient) do(ctx context.Context, method, ref string, payload interface{}, headers map[string]string, out interface{}) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		reqHeaders := map[string]string{
			"Authorization": "Bearer " + token,
			"Accept":        acceptHeader,
		}
		for k, v := range headers {
			reqHeaders[k] = v
		}

		req, err := request.NewJSONRequest(ctx, method, c.resolve(ref), payload, reqHeaders)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", acceptHeader)
		}

		resp, err := request.Call(c.httpClient, req, out)
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.invalidateToken()
			continue
		}
		if err != nil {
			return resp, toRequestError(err)
		}
		return resp, nil
	}
}

// retry repeats idempotent reads on transport failures and temporary provider errors.
func (c *HTTPClient) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		var reqErr *RequestError
		if errors.As(err, &reqErr) && !reqErr.Temporary() {
			return backoff.Permanent(err)
		}
		logrus.WithError(err).Debug("retrying provider read")
		return err
	}, policy)
}

type halLink struct {
	Href string `json:"href"`
}

type halAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type transferPayload struct {
	Links    map[string]halLink `json:"_links"`
	Amount   halAmount          `json:"amount"`
	Metadata map[string]string  `json:"metadata,omitempty"`
}

type transferResource struct {
	Status  string    `json:"status"`
	Amount  halAmount `json:"amount"`
	Created time.Time `json:"created"`
}

// CreateTransfer submits the transfer and returns the provider's location for it.
// The idempotency key makes resubmission of the same transfer safe.
func (c *HTTPClient) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	payload := transferPayload{
		Links: map[string]halLink{
			"source":      {Href: req.SourceURI},
			"destination": {Href: req.DestinationURI},
		},
		Amount: halAmount{
			Value:    req.Amount.StringFixed(2),
			Currency: req.Currency,
		},
		Metadata: req.Metadata,
	}

	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	resp, err := c.do(ctx, http.MethodPost, "/transfers", payload, headers, nil)
	if err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("provider accepted the transfer without returning its location")
	}
	return location, nil
}

func (c *HTTPClient) GetTransfer(ctx context.Context, ref string) (*TransferResult, error) {
	var resource transferResource
	err := c.retry(ctx, func() error {
		_, err := c.do(ctx, http.MethodGet, ref, nil, nil, &resource)
		return err
	})
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(resource.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("provider returned malformed amount %q for %s: %w", resource.Amount.Value, ref, err)
	}
	return &TransferResult{
		Ref:      ref,
		Status:   resource.Status,
		Amount:   amount,
		Currency: resource.Amount.Currency,
		Created:  resource.Created,
	}, nil
}

// CancelTransfer asks the provider to cancel ref. The boolean reports whether
// the provider confirmed the cancellation.
func (c *HTTPClient) CancelTransfer(ctx context.Context, ref string) (bool, error) {
	var resource transferResource
	_, err := c.do(ctx, http.MethodPost, ref, map[string]string{"status": "cancelled"}, nil, &resource)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(resource.Status, "cancelled"), nil
}

func (c *HTTPClient) GetFundingSource(ctx context.Context, ref string) (*FundingSourceResult, error) {
	var resource FundingSourceResult
	err := c.retry(ctx, func() error {
		_, err := c.do(ctx, http.MethodGet, ref, nil, nil, &resource)
		return err
	})
	if err != nil {
		return nil, err
	}
	resource.Ref = ref
	return &resource, nil
}

func (c *HTTPClient) CreateFundingSource(ctx context.Context, req FundingSourceRequest) (string, error) {
	if req.CustomerURI == "" {
		return "", errors.New("customer reference is required")
	}
	payload := map[string]string{
		"routingNumber":   req.RoutingNumber,
		"accountNumber":   req.AccountNumber,
		"bankAccountType": req.BankAccountType,
		"name":            req.Name,
	}
	resp, err := c.do(ctx, http.MethodPost, strings.TrimRight(req.CustomerURI, "/")+"/funding-sources", payload, nil, nil)
	if err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("provider created the funding source without returning its location")
	}
	return location, nil
}

func (c *HTTPClient) InitiateMicroDeposits(ctx context.Context, ref string) error {
	_, err := c.do(ctx, http.MethodPost, strings.TrimRight(ref, "/")+"/micro-deposits", nil, nil, nil)
	return err
}

func (c *HTTPClient) VerifyMicroDeposits(ctx context.Context, ref string, amount1, amount2 decimal.Decimal) error {
	payload := map[string]halAmount{
		"amount1": {Value: amount1.StringFixed(2), Currency: c.currency},
		"amount2": {Value: amount2.StringFixed(2), Currency: c.currency},
	}
	_, err := c.do(ctx, http.MethodPost, strings.TrimRight(ref, "/")+"/micro-deposits", payload, nil, nil)
	return err
}

type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Embedded struct {
		Errors []FieldError `json:"errors"`
	} `json:"_embedded"`
}

// toRequestError converts an HTTP status failure into a RequestError. Other
// errors are returned unchanged.
func toRequestError(err error) error {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	reqErr := &RequestError{StatusCode: statusErr.StatusCode}
	var body errorBody
	if jsonErr := json.Unmarshal(statusErr.Body, &body); jsonErr == nil {
		reqErr.Code = body.Code
		reqErr.Message = body.Message
		reqErr.FieldErrors = body.Embedded.Errors
	}
	if reqErr.Message == "" {
		reqErr.Message = fmt.Sprintf("unexpected status %d", statusErr.StatusCode)
	}
	return reqErr
}
