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

package database

import (
	"context"
	"time"

	"github.com/blnkfinance/payouts/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	transaction   // Interface for transaction-related operations
	transfer      // Interface for transfer-related operations
	fundingSource // Interface for funding source operations
	user          // Interface for user lookups
	unitOfWork    // Interface for running operations atomically
}

// unitOfWork runs fn against a datasource bound to a single database transaction.
// Nested calls join the outer transaction.
type unitOfWork interface {
	RunInTx(ctx context.Context, fn func(ds IDataSource) error) error
}

// transaction defines methods for handling contractor transactions.
type transaction interface {
	RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)                           // Records a new transaction
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)                                           // Retrieves a transaction by ID
	GetTransactionsByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error)               // Retrieves tenant transactions by ID
	GetTransactionsForUpdate(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error)           // Same as GetTransactionsByIDs, locking the rows
	GetTransactionsByTransferID(ctx context.Context, transferID string) ([]*model.Transaction, error)                    // Retrieves transactions linked to a transfer
	ListTransactions(ctx context.Context, tenantID string, filter model.TransactionFilter) ([]*model.Transaction, error) // Lists tenant transactions
	UpdateTransaction(ctx context.Context, txn *model.Transaction) error                                                 // Persists status, link and details
	UpdateTransactionsStatusByTransferID(ctx context.Context, transferID string, status model.Status) (int64, error)     // Moves non-terminal linked transactions to status
}

// transfer defines methods for handling provider transfers.
type transfer interface {
	RecordTransfer(ctx context.Context, t *model.Transfer) (*model.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*model.Transfer, error)
	GetTransferForUpdate(ctx context.Context, id string) (*model.Transfer, error)
	GetTransferByExternalID(ctx context.Context, externalID string) (*model.Transfer, error)
	UpdateTransfer(ctx context.Context, t *model.Transfer) error
	SetTransferExternalID(ctx context.Context, transferID, externalID string) error
	GetStuckTransfers(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.Transfer, error)
}

// fundingSource defines methods for handling bank accounts registered with the provider.
type fundingSource interface {
	RecordFundingSource(ctx context.Context, fs *model.FundingSource) (*model.FundingSource, error)
	GetFundingSource(ctx context.Context, id string) (*model.FundingSource, error)
	GetDefaultFundingSource(ctx context.Context, tenantID, ownerID string) (*model.FundingSource, error)
	UpdateFundingSource(ctx context.Context, fs *model.FundingSource) error
	ClearDefaultFundingSource(ctx context.Context, tenantID, ownerID string) error
}

type user interface {
	GetUser(ctx context.Context, tenantID, userID string) (*model.User, error)
}
