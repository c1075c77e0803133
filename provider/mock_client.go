package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var microDepositLimit = decimal.RequireFromString("0.10")

// MockClient is an in-memory provider for local runs and tests. Its knobs can
// be changed at any time from any goroutine.
type MockClient struct {
	mu             sync.Mutex
	transfers      map[string]*TransferResult
	fundingSources map[string]*FundingSourceResult
	microDeposits  map[string]bool
	idempotency    map[string]string
	createCalls    int
	cancelCalls    int

	createErr      error
	getErr         error
	cancelErr      error
	cancelConfirms bool
	initialStatus  string
	delay          time.Duration
}

func NewMockClient() *MockClient {
	return &MockClient{
		transfers:      make(map[string]*TransferResult),
		fundingSources: make(map[string]*FundingSourceResult),
		microDeposits:  make(map[string]bool),
		idempotency:    make(map[string]string),
		cancelConfirms: true,
		initialStatus:  "pending",
	}
}

func (m *MockClient) Name() string {
	return "mock"
}

func (m *MockClient) Authorize(ctx context.Context) error {
	return ctx.Err()
}

func (m *MockClient) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

func (m *MockClient) FailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func (m *MockClient) FailCancel(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// ConfirmCancel controls whether CancelTransfer reports success.
func (m *MockClient) ConfirmCancel(confirm bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelConfirms = confirm
}

// SetInitialStatus is the status reported for newly created transfers.
func (m *MockClient) SetInitialStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialStatus = status
}

// SetDelay makes every call wait d, or until its context is done.
func (m *MockClient) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MockClient) SetTransferStatus(ref, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transfers[ref]; ok {
		t.Status = status
	}
}

// AddFundingSource registers a funding source and returns its reference.
func (m *MockClient) AddFundingSource(name, status string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := "mock://funding-sources/" + uuid.New().String()
	m.fundingSources[ref] = &FundingSourceResult{Ref: ref, Status: status, Name: name}
	return ref
}

func (m *MockClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func (m *MockClient) CancelCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCalls
}

func (m *MockClient) wait(ctx context.Context) error {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notFound(ref string) *RequestError {
	return &RequestError{StatusCode: http.StatusNotFound, Code: "NotFound", Message: "resource not found: " + ref}
}

func (m *MockClient) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	if ref, ok := m.idempotency[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return ref, nil
	}
	if !req.Amount.IsPositive() {
		return "", &RequestError{
			StatusCode:  http.StatusBadRequest,
			Code:        "ValidationError",
			Message:     "Validation error(s) present. See embedded errors list for more details.",
			FieldErrors: []FieldError{{Code: "Invalid", Message: "Invalid amount.", Path: "/amount/value"}},
		}
	}

	ref := "mock://transfers/" + uuid.New().String()
	m.transfers[ref] = &TransferResult{
		Ref:      ref,
		Status:   m.initialStatus,
		Amount:   req.Amount,
		Currency: req.Currency,
		Created:  time.Now().UTC(),
	}
	if req.IdempotencyKey != "" {
		m.idempotency[req.IdempotencyKey] = ref
	}
	return ref, nil
}

func (m *MockClient) GetTransfer(ctx context.Context, ref string) (*TransferResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.transfers[ref]
	if !ok {
		return nil, notFound(ref)
	}
	result := *t
	return &result, nil
}

func (m *MockClient) CancelTransfer(ctx context.Context, ref string) (bool, error) {
	m.mu.Lock()
	m.cancelCalls++
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return false, m.cancelErr
	}
	t, ok := m.transfers[ref]
	if !ok {
		return false, notFound(ref)
	}
	if !m.cancelConfirms || t.Status != "pending" {
		return false, nil
	}
	t.Status = "cancelled"
	return true, nil
}

func (m *MockClient) GetFundingSource(ctx context.Context, ref string) (*FundingSourceResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.fundingSources[ref]
	if !ok {
		return nil, notFound(ref)
	}
	result := *fs
	return &result, nil
}

func (m *MockClient) CreateFundingSource(ctx context.Context, req FundingSourceRequest) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	if req.RoutingNumber == "" || req.AccountNumber == "" {
		return "", &RequestError{
			StatusCode: http.StatusBadRequest,
			Code:       "ValidationError",
			Message:    "routing and account numbers are required",
		}
	}
	return m.AddFundingSource(req.Name, "unverified"), nil
}

func (m *MockClient) InitiateMicroDeposits(ctx context.Context, ref string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fundingSources[ref]; !ok {
		return notFound(ref)
	}
	m.microDeposits[ref] = true
	return nil
}

// VerifyMicroDeposits accepts any two amounts between one cent and ten cents.
func (m *MockClient) VerifyMicroDeposits(ctx context.Context, ref string, amount1, amount2 decimal.Decimal) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.fundingSources[ref]
	if !ok {
		return notFound(ref)
	}
	if !m.microDeposits[ref] {
		return &RequestError{StatusCode: http.StatusBadRequest, Code: "InvalidResourceState", Message: "micro-deposits have not been initiated"}
	}
	for _, amount := range []decimal.Decimal{amount1, amount2} {
		if !amount.IsPositive() || amount.GreaterThan(microDepositLimit) {
			return &RequestError{StatusCode: http.StatusBadRequest, Code: "InvalidAmount", Message: "wrong micro-deposit amounts"}
		}
	}
	fs.Status = "verified"
	return nil
}
