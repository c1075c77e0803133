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
	"fmt"
	"time"

	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/sirupsen/logrus"
)

// CreateTransaction records a unit of completed work owed to a contractor.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - rc model.RequestContext: The calling admin. Its tenant and user become the tenant and admin of the transaction.
// - txn model.Transaction: The transaction details. UserID, JobID and a positive Value are required.
//
// Returns:
// - *model.Transaction: The stored transaction with status new.
// - error: An error if the input is invalid or the transaction could not be stored.
func (p *Payouts) CreateTransaction(ctx context.Context, rc model.RequestContext, txn model.Transaction) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	if !rc.IsAdmin() {
		return nil, forbidden()
	}
	switch {
	case txn.UserID == "":
		return nil, invalidInput("user_id is required")
	case txn.JobID == "":
		return nil, invalidInput("job_id is required")
	case !txn.Value.IsPositive():
		return nil, invalidInput("value must be greater than zero")
	case !txn.Value.Equal(txn.Value.Round(2)):
		return nil, invalidInput("value must have at most two decimal places")
	}

	if _, err := p.datasource.GetUser(ctx, rc.TenantID, txn.UserID); err != nil {
		if apierror.IsNotFound(err) {
			return nil, invalidInput(fmt.Sprintf("user %s does not exist", txn.UserID))
		}
		return nil, err
	}

	now := time.Now().UTC()
	txn.TransactionID = model.GenerateUUIDWithSuffix(model.TransactionPrefix)
	txn.TenantID = rc.TenantID
	txn.AdminID = rc.UserID
	txn.TransferID = ""
	txn.Status = model.StatusNew
	txn.CreatedAt = now
	txn.UpdatedAt = now

	recorded, err := p.datasource.RecordTransaction(ctx, &txn)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"transaction_id": recorded.TransactionID, "user_id": recorded.UserID, "value": recorded.Value.StringFixed(2)}).Info("transaction recorded")
	return recorded, nil
}

// GetTransaction returns a transaction visible to the caller. Contractors only see their own.
func (p *Payouts) GetTransaction(ctx context.Context, rc model.RequestContext, id string) (*model.Transaction, error) {
	txn, err := p.datasource.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.TenantID != rc.TenantID || (!rc.IsAdmin() && txn.UserID != rc.UserID) {
		return nil, notFound("transaction %s not found", id)
	}
	return txn, nil
}

func (p *Payouts) ListTransactions(ctx context.Context, rc model.RequestContext, filter model.TransactionFilter) ([]*model.Transaction, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, invalidInput(fmt.Sprintf("unknown status %q", filter.Status))
	}
	if !rc.IsAdmin() {
		filter.UserID = rc.UserID
	}
	return p.datasource.ListTransactions(ctx, rc.TenantID, filter)
}

// RetryTransaction resets a failed transaction to new and unlinks it from its
// transfer so it can be batched again.
func (p *Payouts) RetryTransaction(ctx context.Context, rc model.RequestContext, id string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "RetryTransaction")
	defer span.End()

	if !rc.IsAdmin() {
		return nil, forbidden()
	}

	var retried *model.Transaction
	err := p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		locked, err := ds.GetTransactionsForUpdate(ctx, rc.TenantID, []string{id})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return notFound("transaction %s not found", id)
		}
		txn := locked[0]
		if txn.Status != model.StatusFailed {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("only failed transactions can be retried, transaction %s is %s", id, txn.Status), ErrInvalidTransactionState)
		}
		previous := txn.TransferID
		txn.Status = model.StatusNew
		txn.TransferID = ""
		txn.UpdatedAt = time.Now().UTC()
		if err := ds.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"transaction_id": id, "previous_transfer_id": previous}).Info("transaction reset for retry")
		retried = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return retried, nil
}

// GetTransfer returns a transfer with its transactions.
func (p *Payouts) GetTransfer(ctx context.Context, rc model.RequestContext, id string) (*model.Transfer, error) {
	transfer, err := p.loadTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.TenantID != rc.TenantID || (!rc.IsAdmin() && transfer.UserID != rc.UserID) {
		return nil, notFound("transfer %s not found", id)
	}
	return transfer, nil
}
