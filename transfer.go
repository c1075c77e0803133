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
	"net/http"
	"time"

	"github.com/blnkfinance/payouts/database"
	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/internal/notification"
	"github.com/blnkfinance/payouts/model"
	"github.com/blnkfinance/payouts/provider"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// PrepareTransfer groups transactions of a single contractor into a new transfer.
// The transfer is inserted with status new and every transaction is moved to
// processing and linked to it in the same database transaction. No money moves.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - rc model.RequestContext: The calling admin.
// - transactionIDs []string: The transactions to batch.
//
// Returns:
// - *model.Transfer: The new transfer with its transactions.
// - error: An error if the batch is invalid or could not be stored.
func (p *Payouts) PrepareTransfer(ctx context.Context, rc model.RequestContext, transactionIDs []string) (*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "PrepareTransfer")
	defer span.End()

	if !rc.IsAdmin() {
		return nil, forbidden()
	}
	ids := uniqueIDs(transactionIDs)
	if len(ids) == 0 {
		return nil, invalidInput("at least one transaction id is required")
	}
	span.SetAttributes(attribute.Int("payouts.transaction_count", len(ids)))

	txns, err := p.datasource.GetTransactionsByIDs(ctx, rc.TenantID, ids)
	if err != nil {
		return nil, err
	}
	if err := validateBatch(ids, txns); err != nil {
		return nil, err
	}
	recipient := txns[0].UserID

	// Provider lookups happen before any row is locked.
	destination, err := p.recipientFundingSource(ctx, rc.TenantID, recipient)
	if err != nil {
		return nil, err
	}
	source, err := p.payerFundingSource(ctx, rc.TenantID)
	if err != nil {
		return nil, err
	}

	var transfer *model.Transfer
	err = p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		locked, err := ds.GetTransactionsForUpdate(ctx, rc.TenantID, ids)
		if err != nil {
			return err
		}
		if err := validateBatch(ids, locked); err != nil {
			return err
		}

		now := time.Now().UTC()
		transfer = &model.Transfer{
			TransferID:     model.GenerateUUIDWithSuffix(model.TransferPrefix),
			TenantID:       rc.TenantID,
			AdminID:        rc.UserID,
			UserID:         recipient,
			SourceURI:      source,
			DestinationURI: destination.ProviderURI,
			Value:          model.SumTransactions(locked),
			Currency:       p.currency,
			Status:         model.StatusNew,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := ds.RecordTransfer(ctx, transfer); err != nil {
			return err
		}

		for _, txn := range locked {
			txn.TransferID = transfer.TransferID
			txn.Status = model.StatusProcessing
			txn.UpdatedAt = now
			if err := ds.UpdateTransaction(ctx, txn); err != nil {
				return err
			}
		}
		transfer.Transactions = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"transfer_id":  transfer.TransferID,
		"tenant_id":    transfer.TenantID,
		"user_id":      transfer.UserID,
		"value":        transfer.Value.StringFixed(2),
		"transactions": len(transfer.Transactions),
	}).Info("transfer prepared")

	p.notifyTransfer(ctx, model.NotificationTransferCreated, transfer)
	return transfer, nil
}

// ExecuteTransfer submits a prepared transfer to the payment provider.
// The transfer is claimed (new -> processing) before the provider is called, so
// concurrent executions of the same transfer produce a single provider call.
// A rejected submission marks the transfer and its transactions failed.
func (p *Payouts) ExecuteTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "ExecuteTransfer")
	defer span.End()
	span.SetAttributes(attribute.String("payouts.transfer_id", transferID))

	transfer, err := p.claimTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}

	pctx, cancel := p.providerContext(ctx)
	ref, err := p.provider.CreateTransfer(pctx, provider.TransferRequest{
		SourceURI:      transfer.SourceURI,
		DestinationURI: transfer.DestinationURI,
		Amount:         transfer.Value,
		Currency:       transfer.Currency,
		IdempotencyKey: transfer.TransferID,
		Metadata: map[string]string{
			"transfer_id": transfer.TransferID,
			"tenant_id":   transfer.TenantID,
		},
	})
	cancel()
	if err != nil {
		span.RecordError(err)
		return nil, p.failTransfer(ctx, transfer, err)
	}

	if err := p.datasource.SetTransferExternalID(ctx, transfer.TransferID, ref); err != nil {
		notification.NotifyError(fmt.Errorf("transfer %s was accepted by the provider as %s but the reference could not be stored: %w", transfer.TransferID, ref, err))
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"transfer_id": transfer.TransferID, "external_id": ref}).Info("transfer accepted by provider")

	pctx, cancel = p.providerContext(ctx)
	result, err := p.provider.GetTransfer(pctx, ref)
	cancel()
	if err != nil {
		logrus.WithError(err).WithField("transfer_id", transfer.TransferID).Warn("could not fetch transfer status, waiting for provider event")
		return p.loadTransfer(ctx, transfer.TransferID)
	}

	return p.ReconcileTransfer(ctx, transfer.TransferID, result.Status)
}

// PrepareAndExecute batches the transactions and submits the resulting transfer.
func (p *Payouts) PrepareAndExecute(ctx context.Context, rc model.RequestContext, transactionIDs []string) (*model.Transfer, error) {
	transfer, err := p.PrepareTransfer(ctx, rc, transactionIDs)
	if err != nil {
		return nil, err
	}
	return p.ExecuteTransfer(ctx, transfer.TransferID)
}

// claimTransfer moves a new transfer to processing under a row lock.
func (p *Payouts) claimTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	var transfer *model.Transfer
	err := p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		t, err := ds.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if t.Status != model.StatusNew {
			return alreadyPending(fmt.Sprintf("transfer %s is already %s", t.TransferID, t.Status))
		}
		t.Status = model.StatusProcessing
		t.UpdatedAt = time.Now().UTC()
		if err := ds.UpdateTransfer(ctx, t); err != nil {
			return err
		}
		transfer = t
		return nil
	})
	return transfer, err
}

// failTransfer records a rejected submission on the transfer and every linked
// transaction, then returns the provider error for the caller.
func (p *Payouts) failTransfer(ctx context.Context, transfer *model.Transfer, cause error) error {
	// The write-back must happen even when the caller's context timed out.
	ctx = context.WithoutCancel(ctx)
	reason := cause.Error()

	var failed *model.Transfer
	err := p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		t, err := ds.GetTransferForUpdate(ctx, transfer.TransferID)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			return nil
		}
		t.Status = model.StatusFailed
		t.FailureReason = reason
		t.UpdatedAt = time.Now().UTC()
		if err := ds.UpdateTransfer(ctx, t); err != nil {
			return err
		}
		if _, err := ds.UpdateTransactionsStatusByTransferID(ctx, t.TransferID, model.StatusFailed); err != nil {
			return err
		}
		failed = t
		return nil
	})
	if err != nil {
		notification.NotifyError(fmt.Errorf("transfer %s was rejected by the provider but could not be marked failed: %w", transfer.TransferID, err))
	} else if failed != nil {
		logrus.WithFields(logrus.Fields{"transfer_id": failed.TransferID, "reason": reason}).Warn("transfer failed")
		if loaded, err := p.loadTransfer(ctx, failed.TransferID); err == nil {
			failed = loaded
		}
		p.afterStatusChange(ctx, failed)
	}

	if errors.Is(cause, context.DeadlineExceeded) {
		return providerError("payment provider did not answer in time", cause)
	}
	return providerError("payment provider rejected the transfer", cause)
}

// CancelTransaction cancels a transaction that has not been settled. When its
// transfer was submitted, the provider must confirm the cancellation first;
// otherwise the transaction (with its unsent transfer and siblings) is
// cancelled locally.
func (p *Payouts) CancelTransaction(ctx context.Context, rc model.RequestContext, transactionID string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "CancelTransaction")
	defer span.End()

	if !rc.IsAdmin() {
		return nil, forbidden()
	}
	txn, err := p.GetTransaction(ctx, rc, transactionID)
	if err != nil {
		return nil, err
	}
	if !txn.CanBeCancelled() {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("transaction %s is %s and can no longer be cancelled", txn.TransactionID, txn.Status), ErrNotCancellable)
	}

	if txn.IsLinked() {
		transfer, err := p.datasource.GetTransfer(ctx, txn.TransferID)
		if err != nil {
			return nil, err
		}
		if transfer.Submitted() {
			return p.cancelSubmitted(ctx, rc, txn, transfer)
		}
		if transfer.Status != model.StatusNew {
			return nil, alreadyPending(fmt.Sprintf("transfer %s is being submitted to the provider", transfer.TransferID))
		}
	}

	cancelledTransfer, err := p.cancelLocally(ctx, rc, txn)
	if err != nil {
		return nil, err
	}
	if cancelledTransfer != nil {
		if loaded, err := p.loadTransfer(ctx, cancelledTransfer.TransferID); err == nil {
			cancelledTransfer = loaded
		}
		p.afterStatusChange(ctx, cancelledTransfer)
	}
	return p.datasource.GetTransaction(ctx, transactionID)
}

func (p *Payouts) cancelSubmitted(ctx context.Context, rc model.RequestContext, txn *model.Transaction, transfer *model.Transfer) (*model.Transaction, error) {
	pctx, cancel := p.providerContext(ctx)
	confirmed, err := p.provider.CancelTransfer(pctx, transfer.ExternalID)
	cancel()
	if err != nil {
		return nil, providerError("payment provider could not cancel the transfer", err)
	}
	if !confirmed {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("provider did not confirm cancellation of transfer %s", transfer.TransferID), ErrCancellationNotConfirmed)
	}

	if _, err := p.ReconcileTransfer(ctx, transfer.TransferID, string(model.StatusCancelled)); err != nil {
		return nil, err
	}
	return p.GetTransaction(ctx, rc, txn.TransactionID)
}

// cancelLocally cancels a transaction that never reached the provider. Locks are
// taken transfer first, then transactions, the same order reconciliation uses.
func (p *Payouts) cancelLocally(ctx context.Context, rc model.RequestContext, txn *model.Transaction) (*model.Transfer, error) {
	var cancelled *model.Transfer
	err := p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		now := time.Now().UTC()
		if txn.IsLinked() {
			t, err := ds.GetTransferForUpdate(ctx, txn.TransferID)
			if err != nil {
				return err
			}
			if t.Submitted() || t.Status != model.StatusNew {
				return alreadyPending(fmt.Sprintf("transfer %s is being submitted to the provider", t.TransferID))
			}
			t.Status = model.StatusCancelled
			t.UpdatedAt = now
			if err := ds.UpdateTransfer(ctx, t); err != nil {
				return err
			}
			if _, err := ds.UpdateTransactionsStatusByTransferID(ctx, t.TransferID, model.StatusCancelled); err != nil {
				return err
			}
			cancelled = t
			return nil
		}

		locked, err := ds.GetTransactionsForUpdate(ctx, rc.TenantID, []string{txn.TransactionID})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return notFound("transaction %s not found", txn.TransactionID)
		}
		current := locked[0]
		if current.IsLinked() {
			return alreadyPending(fmt.Sprintf("transaction %s was batched into transfer %s", current.TransactionID, current.TransferID))
		}
		if !current.CanBeCancelled() {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("transaction %s is %s and can no longer be cancelled", current.TransactionID, current.Status), ErrNotCancellable)
		}
		current.Status = model.StatusCancelled
		current.UpdatedAt = now
		return ds.UpdateTransaction(ctx, current)
	})
	return cancelled, err
}

// recipientFundingSource returns the contractor's default funding source after
// confirming with the provider that it can receive money.
func (p *Payouts) recipientFundingSource(ctx context.Context, tenantID, userID string) (*model.FundingSource, error) {
	fs, err := p.datasource.GetDefaultFundingSource(ctx, tenantID, userID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil, noFundingSource(fmt.Sprintf("user %s has no default funding source", userID))
		}
		return nil, err
	}
	if !fs.IsVerified() {
		return nil, noFundingSource(fmt.Sprintf("default funding source of user %s is not verified", userID))
	}

	pctx, cancel := p.providerContext(ctx)
	defer cancel()
	result, err := p.provider.GetFundingSource(pctx, fs.ProviderURI)
	if err != nil {
		var reqErr *provider.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound {
			return nil, noFundingSource(fmt.Sprintf("default funding source of user %s is unknown to the provider", userID))
		}
		return nil, providerError("could not verify the recipient funding source", err)
	}
	if !result.Verified() {
		return nil, noFundingSource(fmt.Sprintf("default funding source of user %s is not verified by the provider", userID))
	}
	return fs, nil
}

// payerFundingSource returns the tenant's own verified default funding source,
// falling back to the platform master funding source.
func (p *Payouts) payerFundingSource(ctx context.Context, tenantID string) (string, error) {
	fs, err := p.datasource.GetDefaultFundingSource(ctx, tenantID, tenantID)
	switch {
	case err == nil && fs.IsVerified():
		return fs.ProviderURI, nil
	case err != nil && !apierror.IsNotFound(err):
		return "", err
	}
	if p.masterFundingSource != "" {
		return p.masterFundingSource, nil
	}
	return "", noFundingSource(fmt.Sprintf("tenant %s has no verified funding source to pay from", tenantID))
}

// validateBatch checks that txns holds every id, all for one user, all new.
func validateBatch(ids []string, txns []*model.Transaction) error {
	found := make(map[string]*model.Transaction, len(txns))
	for _, txn := range txns {
		found[txn.TransactionID] = txn
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return notFound("transaction %s not found", id)
		}
	}

	owner := txns[0].UserID
	for _, txn := range txns {
		if txn.UserID != owner {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "all transactions of a transfer must belong to the same user", ErrTransactionOwnerMismatch)
		}
	}

	for _, txn := range txns {
		switch {
		case txn.Status == model.StatusProcessing || (txn.Status == model.StatusNew && txn.IsLinked()):
			return alreadyPending(fmt.Sprintf("transaction %s is already part of transfer %s", txn.TransactionID, txn.TransferID))
		case txn.Status != model.StatusNew:
			return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("transaction %s is %s", txn.TransactionID, txn.Status), ErrInvalidTransactionState)
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique
}

func (p *Payouts) loadTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	transfer, err := p.datasource.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	txns, err := p.datasource.GetTransactionsByTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	transfer.Transactions = txns
	return transfer, nil
}
