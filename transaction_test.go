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
	"testing"

	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn, err := f.payouts.CreateTransaction(ctx, adminRC, model.Transaction{
		UserID:   testContractor,
		JobID:    "job_" + gofakeit.UUID(),
		Value:    decimal.RequireFromString("42.10"),
		Location: &model.Location{Latitude: gofakeit.Latitude(), Longitude: gofakeit.Longitude()},
		MetaData: map[string]interface{}{"shift": "night"},
		Status:   model.StatusProcessed,
	})
	require.NoError(t, err)

	assert.Contains(t, txn.TransactionID, "txn_")
	assert.Equal(t, model.StatusNew, txn.Status)
	assert.Equal(t, testTenant, txn.TenantID)
	assert.Equal(t, testAdmin, txn.AdminID)
	assert.Empty(t, txn.TransferID)
	assert.False(t, txn.CreatedAt.IsZero())

	stored := f.store.transaction(txn.TransactionID)
	assert.True(t, decimal.RequireFromString("42.10").Equal(stored.Value))
}

func TestCreateTransaction_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := model.Transaction{UserID: testContractor, JobID: "job_1", Value: decimal.RequireFromString("1.00")}

	tests := []struct {
		name   string
		rc     model.RequestContext
		mutate func(*model.Transaction)
		code   apierror.ErrorCode
	}{
		{"missing user", adminRC, func(t *model.Transaction) { t.UserID = "" }, apierror.ErrInvalidInput},
		{"missing job", adminRC, func(t *model.Transaction) { t.JobID = "" }, apierror.ErrInvalidInput},
		{"zero value", adminRC, func(t *model.Transaction) { t.Value = decimal.Zero }, apierror.ErrInvalidInput},
		{"negative value", adminRC, func(t *model.Transaction) { t.Value = decimal.RequireFromString("-3") }, apierror.ErrInvalidInput},
		{"sub-cent value", adminRC, func(t *model.Transaction) { t.Value = decimal.RequireFromString("1.005") }, apierror.ErrInvalidInput},
		{"unknown user", adminRC, func(t *model.Transaction) { t.UserID = "user_404" }, apierror.ErrInvalidInput},
		{"contractor caller", contractorRC, func(*model.Transaction) {}, apierror.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := valid
			tt.mutate(&txn)
			_, err := f.payouts.CreateTransaction(ctx, tt.rc, txn)
			requireCode(t, err, tt.code)
		})
	}
}

func TestGetTransaction_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.addTransaction(testContractor, "1.00")
	theirs := f.addTransaction(otherUser, "1.00")

	_, err := f.payouts.GetTransaction(ctx, contractorRC, mine)
	assert.NoError(t, err)

	_, err = f.payouts.GetTransaction(ctx, contractorRC, theirs)
	requireCode(t, err, apierror.ErrNotFound)

	_, err = f.payouts.GetTransaction(ctx, adminRC, theirs)
	assert.NoError(t, err)

	rc := adminRC
	rc.TenantID = "tenant_2"
	_, err = f.payouts.GetTransaction(ctx, rc, mine)
	requireCode(t, err, apierror.ErrNotFound)
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTransaction(testContractor, "1.00")
	f.addTransaction(testContractor, "2.00")
	f.addTransaction(otherUser, "3.00")

	all, err := f.payouts.ListTransactions(ctx, adminRC, model.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	own, err := f.payouts.ListTransactions(ctx, contractorRC, model.TransactionFilter{UserID: otherUser})
	require.NoError(t, err)
	assert.Len(t, own, 2)
	for _, txn := range own {
		assert.Equal(t, testContractor, txn.UserID)
	}

	_, err = f.payouts.ListTransactions(ctx, adminRC, model.TransactionFilter{Status: "paid"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRetryTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	transfer := f.submitted(t, "5.00")
	id := transfer.Transactions[0].TransactionID

	_, err := f.payouts.RetryTransaction(ctx, adminRC, id)
	assert.ErrorIs(t, err, ErrInvalidTransactionState, "processing transactions cannot be retried")

	_, err = f.payouts.ReconcileTransfer(ctx, transfer.TransferID, "failed")
	require.NoError(t, err)

	txn, err := f.payouts.RetryTransaction(ctx, adminRC, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, txn.Status)
	assert.Empty(t, txn.TransferID)
	assert.Equal(t, model.StatusFailed, f.store.transfer(transfer.TransferID).Status, "the failed transfer keeps its history")

	again, err := f.payouts.PrepareAndExecute(ctx, adminRC, []string{id})
	require.NoError(t, err)
	assert.NotEqual(t, transfer.TransferID, again.TransferID)

	_, err = f.payouts.RetryTransaction(ctx, contractorRC, id)
	requireCode(t, err, apierror.ErrForbidden)
}

func TestGetTransfer_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	transfer := f.submitted(t, "5.00", "1.25")

	got, err := f.payouts.GetTransfer(ctx, contractorRC, transfer.TransferID)
	require.NoError(t, err)
	assert.Len(t, got.Transactions, 2)

	other := model.RequestContext{TenantID: testTenant, UserID: otherUser, Role: model.RoleContractor}
	_, err = f.payouts.GetTransfer(ctx, other, transfer.TransferID)
	requireCode(t, err, apierror.ErrNotFound)
}
