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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// RunInTx records the call and runs fn against the mock itself when no error is configured.
func (m *MockDataSource) RunInTx(ctx context.Context, fn func(ds database.IDataSource) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

// Transaction methods

func (m *MockDataSource) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetTransactionsByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetTransactionsForUpdate(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockDataSource) GetTransactionsByTransferID(ctx context.Context, transferID string) ([]*model.Transaction, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockDataSource) ListTransactions(ctx context.Context, tenantID string, filter model.TransactionFilter) ([]*model.Transaction, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockDataSource) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) UpdateTransactionsStatusByTransferID(ctx context.Context, transferID string, status model.Status) (int64, error) {
	args := m.Called(ctx, transferID, status)
	return args.Get(0).(int64), args.Error(1)
}

// Transfer methods

func (m *MockDataSource) RecordTransfer(ctx context.Context, t *model.Transfer) (*model.Transfer, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transfer), args.Error(1)
}

func (m *MockDataSource) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transfer), args.Error(1)
}

func (m *MockDataSource) GetTransferForUpdate(ctx context.Context, id string) (*model.Transfer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transfer), args.Error(1)
}

func (m *MockDataSource) GetTransferByExternalID(ctx context.Context, externalID string) (*model.Transfer, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transfer), args.Error(1)
}

func (m *MockDataSource) UpdateTransfer(ctx context.Context, t *model.Transfer) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockDataSource) SetTransferExternalID(ctx context.Context, transferID, externalID string) error {
	args := m.Called(ctx, transferID, externalID)
	return args.Error(0)
}

func (m *MockDataSource) GetStuckTransfers(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.Transfer, error) {
	args := m.Called(ctx, updatedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transfer), args.Error(1)
}

// Funding source methods

func (m *MockDataSource) RecordFundingSource(ctx context.Context, fs *model.FundingSource) (*model.FundingSource, error) {
	args := m.Called(ctx, fs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FundingSource), args.Error(1)
}

func (m *MockDataSource) GetFundingSource(ctx context.Context, id string) (*model.FundingSource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FundingSource), args.Error(1)
}

func (m *MockDataSource) GetDefaultFundingSource(ctx context.Context, tenantID, ownerID string) (*model.FundingSource, error) {
	args := m.Called(ctx, tenantID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FundingSource), args.Error(1)
}

func (m *MockDataSource) UpdateFundingSource(ctx context.Context, fs *model.FundingSource) error {
	args := m.Called(ctx, fs)
	return args.Error(0)
}

func (m *MockDataSource) ClearDefaultFundingSource(ctx context.Context, tenantID, ownerID string) error {
	args := m.Called(ctx, tenantID, ownerID)
	return args.Error(0)
}

// User methods

func (m *MockDataSource) GetUser(ctx context.Context, tenantID, userID string) (*model.User, error) {
	args := m.Called(ctx, tenantID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
