/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payouts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/blnkfinance/payouts/provider"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory datasource. RunInTx holds txMu for the whole unit of
// work, which serializes transactions the way row locks do, and restores a
// snapshot when fn fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	transactions   map[string]model.Transaction
	transfers      map[string]model.Transfer
	fundingSources map[string]model.FundingSource
	users          map[string]model.User

	failBulkUpdate error
}

type memSnapshot struct {
	transactions   map[string]model.Transaction
	transfers      map[string]model.Transfer
	fundingSources map[string]model.FundingSource
}

func newMemStore() *memStore {
	return &memStore{
		transactions:   make(map[string]model.Transaction),
		transfers:      make(map[string]model.Transfer),
		fundingSources: make(map[string]model.FundingSource),
		users:          make(map[string]model.User),
	}
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{copyMap(s.transactions), copyMap(s.transfers), copyMap(s.fundingSources)}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions, s.transfers, s.fundingSources = snap.transactions, snap.transfers, snap.fundingSources
}

func (s *memStore) transaction(id string) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions[id]
}

func (s *memStore) transfer(id string) model.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[id]
}

func (s *memStore) putTransfer(t model.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[t.TransferID] = t
}

func (s *memStore) putTransaction(txn model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[txn.TransactionID] = txn
}

func (s *memStore) putFundingSource(fs model.FundingSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fundingSources[fs.FundingSourceID] = fs
}

func (s *memStore) putUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.TenantID+"/"+u.UserID] = u
}

func (s *memStore) setFailBulkUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBulkUpdate = err
}

type memDS struct {
	s    *memStore
	inTx bool
}

var _ database.IDataSource = memDS{}

func missing(what, id string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s '%s' not found", what, id), nil)
}

func (d memDS) RunInTx(ctx context.Context, fn func(ds database.IDataSource) error) error {
	if d.inTx {
		return fn(d)
	}
	d.s.txMu.Lock()
	defer d.s.txMu.Unlock()

	snap := d.s.snapshot()
	if err := fn(memDS{s: d.s, inTx: true}); err != nil {
		d.s.restore(snap)
		return err
	}
	return nil
}

func (d memDS) RecordTransaction(_ context.Context, txn *model.Transaction) (*model.Transaction, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.transactions[txn.TransactionID]; ok {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "duplicate transaction", nil)
	}
	d.s.transactions[txn.TransactionID] = *txn
	return txn, nil
}

func (d memDS) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	txn, ok := d.s.transactions[id]
	if !ok {
		return nil, missing("Transaction", id)
	}
	return &txn, nil
}

func (d memDS) GetTransactionsByIDs(_ context.Context, tenantID string, ids []string) ([]*model.Transaction, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var result []*model.Transaction
	for _, id := range ids {
		if txn, ok := d.s.transactions[id]; ok && txn.TenantID == tenantID {
			txn := txn
			result = append(result, &txn)
		}
	}
	return result, nil
}

func (d memDS) GetTransactionsForUpdate(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error) {
	return d.GetTransactionsByIDs(ctx, tenantID, ids)
}

func (d memDS) GetTransactionsByTransferID(_ context.Context, transferID string) ([]*model.Transaction, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var result []*model.Transaction
	for _, txn := range d.s.transactions {
		if txn.TransferID == transferID {
			txn := txn
			result = append(result, &txn)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TransactionID < result[j].TransactionID })
	return result, nil
}

func (d memDS) ListTransactions(_ context.Context, tenantID string, filter model.TransactionFilter) ([]*model.Transaction, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var result []*model.Transaction
	for _, txn := range d.s.transactions {
		if txn.TenantID != tenantID ||
			(filter.UserID != "" && txn.UserID != filter.UserID) ||
			(filter.TransferID != "" && txn.TransferID != filter.TransferID) ||
			(filter.Status != "" && txn.Status != filter.Status) {
			continue
		}
		txn := txn
		result = append(result, &txn)
	}
	return result, nil
}

func (d memDS) UpdateTransaction(_ context.Context, txn *model.Transaction) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.transactions[txn.TransactionID]; !ok {
		return missing("Transaction", txn.TransactionID)
	}
	if txn.Status == model.StatusProcessing && txn.TransferID == "" {
		return errors.New(`new row violates check constraint "processing_requires_transfer"`)
	}
	d.s.transactions[txn.TransactionID] = *txn
	return nil
}

func (d memDS) UpdateTransactionsStatusByTransferID(_ context.Context, transferID string, status model.Status) (int64, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if d.s.failBulkUpdate != nil {
		return 0, d.s.failBulkUpdate
	}
	var updated int64
	for id, txn := range d.s.transactions {
		if txn.TransferID == transferID && !txn.Status.IsTerminal() {
			txn.Status = status
			txn.UpdatedAt = time.Now().UTC()
			d.s.transactions[id] = txn
			updated++
		}
	}
	return updated, nil
}

func (d memDS) RecordTransfer(_ context.Context, t *model.Transfer) (*model.Transfer, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	stored := *t
	stored.Transactions = nil
	d.s.transfers[t.TransferID] = stored
	return t, nil
}

func (d memDS) GetTransfer(_ context.Context, id string) (*model.Transfer, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	t, ok := d.s.transfers[id]
	if !ok {
		return nil, missing("Transfer", id)
	}
	return &t, nil
}

func (d memDS) GetTransferForUpdate(ctx context.Context, id string) (*model.Transfer, error) {
	return d.GetTransfer(ctx, id)
}

func (d memDS) GetTransferByExternalID(_ context.Context, externalID string) (*model.Transfer, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var suffixMatch *model.Transfer
	for _, t := range d.s.transfers {
		t := t
		if t.ExternalID == externalID {
			return &t, nil
		}
		if !strings.Contains(externalID, "/") && strings.HasSuffix(t.ExternalID, "/transfers/"+externalID) {
			suffixMatch = &t
		}
	}
	if suffixMatch != nil {
		return suffixMatch, nil
	}
	return nil, missing("Transfer with external id", externalID)
}

func (d memDS) UpdateTransfer(_ context.Context, t *model.Transfer) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	current, ok := d.s.transfers[t.TransferID]
	if !ok {
		return missing("Transfer", t.TransferID)
	}
	current.Status = t.Status
	current.ExternalID = t.ExternalID
	current.TenantChargeID = t.TenantChargeID
	current.FailureReason = t.FailureReason
	current.UpdatedAt = time.Now().UTC()
	d.s.transfers[t.TransferID] = current
	return nil
}

func (d memDS) SetTransferExternalID(_ context.Context, transferID, externalID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	t, ok := d.s.transfers[transferID]
	if !ok || t.ExternalID != "" {
		return apierror.NewAPIError(apierror.ErrConflict, "external id already set", nil)
	}
	t.ExternalID = externalID
	t.UpdatedAt = time.Now().UTC()
	d.s.transfers[transferID] = t
	return nil
}

func (d memDS) GetStuckTransfers(_ context.Context, updatedBefore time.Time, limit int) ([]*model.Transfer, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var result []*model.Transfer
	for _, t := range d.s.transfers {
		if t.Status == model.StatusProcessing && t.UpdatedAt.Before(updatedBefore) {
			t := t
			result = append(result, &t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (d memDS) RecordFundingSource(_ context.Context, fs *model.FundingSource) (*model.FundingSource, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.fundingSources[fs.FundingSourceID] = *fs
	return fs, nil
}

func (d memDS) GetFundingSource(_ context.Context, id string) (*model.FundingSource, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	fs, ok := d.s.fundingSources[id]
	if !ok {
		return nil, missing("Funding source", id)
	}
	return &fs, nil
}

func (d memDS) GetDefaultFundingSource(_ context.Context, tenantID, ownerID string) (*model.FundingSource, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	for _, fs := range d.s.fundingSources {
		if fs.TenantID == tenantID && fs.OwnerID == ownerID && fs.IsDefault {
			fs := fs
			return &fs, nil
		}
	}
	return nil, missing("Default funding source for", ownerID)
}

func (d memDS) UpdateFundingSource(_ context.Context, fs *model.FundingSource) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.fundingSources[fs.FundingSourceID]; !ok {
		return missing("Funding source", fs.FundingSourceID)
	}
	if fs.IsDefault {
		for id, other := range d.s.fundingSources {
			if id != fs.FundingSourceID && other.TenantID == fs.TenantID && other.OwnerID == fs.OwnerID && other.IsDefault {
				return errors.New(`duplicate key value violates unique constraint "idx_funding_sources_one_default"`)
			}
		}
	}
	d.s.fundingSources[fs.FundingSourceID] = *fs
	return nil
}

func (d memDS) ClearDefaultFundingSource(_ context.Context, tenantID, ownerID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	for id, fs := range d.s.fundingSources {
		if fs.TenantID == tenantID && fs.OwnerID == ownerID && fs.IsDefault {
			fs.IsDefault = false
			d.s.fundingSources[id] = fs
		}
	}
	return nil
}

func (d memDS) GetUser(_ context.Context, tenantID, userID string) (*model.User, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	u, ok := d.s.users[tenantID+"/"+userID]
	if !ok {
		return nil, missing("User", userID)
	}
	return &u, nil
}

type sentNotification struct {
	kind      model.NotificationKind
	recipient model.Recipient
}

type countingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *countingNotifier) Send(_ context.Context, kind model.NotificationKind, recipient model.Recipient, _ map[string]interface{}) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{kind: kind, recipient: recipient})
	if n.err != nil {
		return false, n.err
	}
	return true, nil
}

func (n *countingNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *countingNotifier) count(kind model.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.kind == kind {
			count++
		}
	}
	return count
}

func (n *countingNotifier) recipients(kind model.NotificationKind) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []string
	for _, s := range n.sent {
		if s.kind == kind {
			ids = append(ids, s.recipient.UserID)
		}
	}
	sort.Strings(ids)
	return ids
}

type recordingWebhooks struct {
	mu     sync.Mutex
	events []string
}

func (w *recordingWebhooks) PublishWebhook(_ context.Context, webhook NewWebhook) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, webhook.Event)
	return nil
}

func (w *recordingWebhooks) published() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.events...)
}

const (
	testTenant     = "tenant_1"
	testAdmin      = "admin_1"
	testContractor = "user_1"
	otherUser      = "user_2"
)

var (
	adminRC      = model.RequestContext{TenantID: testTenant, UserID: testAdmin, Role: model.RoleAdmin}
	contractorRC = model.RequestContext{TenantID: testTenant, UserID: testContractor, Role: model.RoleContractor}
)

type fixture struct {
	payouts  *Payouts
	store    *memStore
	provider *provider.MockClient
	notifier *countingNotifier
	webhooks *recordingWebhooks
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	store := newMemStore()
	mock := provider.NewMockClient()
	notifier := &countingNotifier{}
	webhooks := &recordingWebhooks{}

	store.putUser(model.User{UserID: testAdmin, TenantID: testTenant, Email: gofakeit.Email(), FirstName: "Amaka", LastName: "Admin", ProviderCustomerURI: "mock://customers/tenant"})
	store.putUser(model.User{UserID: testTenant, TenantID: testTenant, Email: gofakeit.Email(), FirstName: "Tenant", ProviderCustomerURI: "mock://customers/tenant"})
	store.putUser(model.User{UserID: testContractor, TenantID: testTenant, Email: gofakeit.Email(), FirstName: gofakeit.FirstName(), LastName: gofakeit.LastName(), ProviderCustomerURI: "mock://customers/1"})
	store.putUser(model.User{UserID: otherUser, TenantID: testTenant, Email: gofakeit.Email(), FirstName: gofakeit.FirstName(), ProviderCustomerURI: "mock://customers/2"})

	now := time.Now().UTC()
	store.putFundingSource(model.FundingSource{
		FundingSourceID:    "fs_recipient",
		TenantID:           testTenant,
		OwnerID:            testContractor,
		ProviderURI:        mock.AddFundingSource("Checking", "verified"),
		Name:               "Checking",
		IsDefault:          true,
		VerificationStatus: model.VerificationVerified,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	store.putFundingSource(model.FundingSource{
		FundingSourceID:    "fs_tenant",
		TenantID:           testTenant,
		OwnerID:            testTenant,
		ProviderURI:        mock.AddFundingSource("Operating", "verified"),
		Name:               "Operating",
		IsDefault:          true,
		VerificationStatus: model.VerificationVerified,
		CreatedAt:          now,
		UpdatedAt:          now,
	})

	opts := Options{
		Provider:        mock,
		Notifier:        notifier,
		Webhooks:        webhooks,
		Currency:        "usd",
		ProviderTimeout: 2 * time.Second,
	}
	for _, m := range mutate {
		m(&opts)
	}
	p, err := NewPayouts(memDS{s: store}, opts)
	require.NoError(t, err)

	return &fixture{payouts: p, store: store, provider: mock, notifier: notifier, webhooks: webhooks}
}

func (f *fixture) addTransaction(userID, value string) string {
	now := time.Now().UTC()
	txn := model.Transaction{
		TransactionID: model.GenerateUUIDWithSuffix(model.TransactionPrefix),
		TenantID:      testTenant,
		UserID:        userID,
		AdminID:       testAdmin,
		JobID:         "job_" + gofakeit.UUID(),
		Value:         decimal.RequireFromString(value),
		Status:        model.StatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.store.putTransaction(txn)
	return txn.TransactionID
}

// submitted prepares and executes a transfer for the given values, leaving it
// processing at the provider.
func (f *fixture) submitted(t *testing.T, values ...string) *model.Transfer {
	t.Helper()
	var ids []string
	for _, v := range values {
		ids = append(ids, f.addTransaction(testContractor, v))
	}
	transfer, err := f.payouts.PrepareAndExecute(context.Background(), adminRC, ids)
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, transfer.Status)
	require.NotEmpty(t, transfer.ExternalID)
	return transfer
}
