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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/lib/pq"
)

const transactionColumns = `transaction_id, tenant_id, user_id, admin_id, job_id, transfer_id, value, status, location, meta_data, created_at, updated_at`

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	txn := &model.Transaction{}
	var transferID sql.NullString
	var locationJSON, metaDataJSON []byte

	err := row.Scan(
		&txn.TransactionID,
		&txn.TenantID,
		&txn.UserID,
		&txn.AdminID,
		&txn.JobID,
		&transferID,
		&txn.Value,
		&txn.Status,
		&locationJSON,
		&metaDataJSON,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.TransferID = transferID.String
	if len(locationJSON) > 0 {
		if err := json.Unmarshal(locationJSON, &txn.Location); err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return txn, nil
}

func transactionJSONColumns(txn *model.Transaction) (location, metaData interface{}, err error) {
	if txn.Location != nil {
		b, err := json.Marshal(txn.Location)
		if err != nil {
			return nil, nil, err
		}
		location = b
	}
	if len(txn.MetaData) > 0 {
		b, err := json.Marshal(txn.MetaData)
		if err != nil {
			return nil, nil, err
		}
		metaData = b
	}
	return location, metaData, nil
}

func (d Datasource) RecordTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Saving transaction to db")
	defer span.End()

	location, metaData, err := transactionJSONColumns(txn)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal transaction details", err)
	}

	_, err = d.db().ExecContext(ctx,
		`INSERT INTO payouts.transactions(`+transactionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		txn.TransactionID, txn.TenantID, txn.UserID, txn.AdminID, txn.JobID, nullString(txn.TransferID), txn.Value, txn.Status, location, metaData, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return txn, nil
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching transaction from db")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM payouts.transactions WHERE transaction_id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}
	return txn, nil
}

func (d Datasource) GetTransactionsByIDs(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error) {
	return d.getTransactionsByIDs(ctx, tenantID, ids, false)
}

// GetTransactionsForUpdate locks the selected rows until the enclosing
// transaction ends. Outside RunInTx the lock is released immediately.
func (d Datasource) GetTransactionsForUpdate(ctx context.Context, tenantID string, ids []string) ([]*model.Transaction, error) {
	return d.getTransactionsByIDs(ctx, tenantID, ids, true)
}

func (d Datasource) getTransactionsByIDs(ctx context.Context, tenantID string, ids []string, forUpdate bool) ([]*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching transactions by id")
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM payouts.transactions WHERE tenant_id = $1 AND transaction_id = ANY($2) ORDER BY created_at, transaction_id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := d.db().QueryContext(ctx, query, tenantID, pq.Array(ids))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	return collectTransactions(rows)
}

func (d Datasource) GetTransactionsByTransferID(ctx context.Context, transferID string) ([]*model.Transaction, error) {
	rows, err := d.db().QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM payouts.transactions WHERE transfer_id = $1 ORDER BY created_at, transaction_id`,
		transferID,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfer transactions", err)
	}
	return collectTransactions(rows)
}

func (d Datasource) ListTransactions(ctx context.Context, tenantID string, filter model.TransactionFilter) ([]*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Listing transactions")
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM payouts.transactions WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.TransferID != "" {
		args = append(args, filter.TransferID)
		query += fmt.Sprintf(" AND transfer_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list transactions", err)
	}
	return collectTransactions(rows)
}

func (d Datasource) UpdateTransaction(ctx context.Context, txn *model.Transaction) error {
	ctx, span := tracer.Start(ctx, "Updating transaction")
	defer span.End()

	location, metaData, err := transactionJSONColumns(txn)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal transaction details", err)
	}

	txn.UpdatedAt = time.Now().UTC()
	result, err := d.db().ExecContext(ctx, `
		UPDATE payouts.transactions
		SET transfer_id = $2, value = $3, status = $4, location = $5, meta_data = $6, updated_at = $7
		WHERE transaction_id = $1
	`, txn.TransactionID, nullString(txn.TransferID), txn.Value, txn.Status, location, metaData, txn.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", txn.TransactionID), nil)
	}
	return nil
}

func (d Datasource) UpdateTransactionsStatusByTransferID(ctx context.Context, transferID string, status model.Status) (int64, error) {
	ctx, span := tracer.Start(ctx, "Updating transfer transactions")
	defer span.End()

	result, err := d.db().ExecContext(ctx, `
		UPDATE payouts.transactions
		SET status = $2, updated_at = $3
		WHERE transfer_id = $1 AND status IN ('new', 'processing')
	`, transferID, status, time.Now().UTC())
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transfer transactions", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected, nil
}

func collectTransactions(rows *sql.Rows) ([]*model.Transaction, error) {
	defer rows.Close()

	transactions := []*model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating transactions", err)
	}
	return transactions, nil
}
