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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
)

const transferColumns = `transfer_id, tenant_id, admin_id, user_id, source_uri, destination_uri, value, currency, status, external_id, tenant_charge_id, failure_reason, created_at, updated_at`

func scanTransfer(row rowScanner) (*model.Transfer, error) {
	t := &model.Transfer{}
	var externalID, chargeID, failureReason sql.NullString
	err := row.Scan(
		&t.TransferID,
		&t.TenantID,
		&t.AdminID,
		&t.UserID,
		&t.SourceURI,
		&t.DestinationURI,
		&t.Value,
		&t.Currency,
		&t.Status,
		&externalID,
		&chargeID,
		&failureReason,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ExternalID = externalID.String
	t.TenantChargeID = chargeID.String
	t.FailureReason = failureReason.String
	return t, nil
}

func (d Datasource) RecordTransfer(ctx context.Context, t *model.Transfer) (*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "Saving transfer to db")
	defer span.End()

	_, err := d.db().ExecContext(ctx,
		`INSERT INTO payouts.transfers(`+transferColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.TransferID, t.TenantID, t.AdminID, t.UserID, t.SourceURI, t.DestinationURI, t.Value, t.Currency, t.Status,
		nullString(t.ExternalID), nullString(t.TenantChargeID), nullString(t.FailureReason), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transfer", err)
	}
	return t, nil
}

func (d Datasource) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	return d.getTransfer(ctx, `WHERE transfer_id = $1`, id)
}

// GetTransferForUpdate locks the transfer row until the enclosing transaction ends.
func (d Datasource) GetTransferForUpdate(ctx context.Context, id string) (*model.Transfer, error) {
	return d.getTransfer(ctx, `WHERE transfer_id = $1 FOR UPDATE`, id)
}

// GetTransferByExternalID matches the stored provider reference. A bare
// resource id also matches a reference ending in /transfers/<id>, with an
// exact match preferred.
func (d Datasource) GetTransferByExternalID(ctx context.Context, externalID string) (*model.Transfer, error) {
	if strings.Contains(externalID, "/") {
		return d.getTransfer(ctx, `WHERE external_id = $1`, externalID)
	}
	return d.getTransfer(ctx, `WHERE external_id = $1::text OR right(external_id, length($1::text) + 11) = '/transfers/' || $1::text
		ORDER BY (external_id = $1::text) DESC LIMIT 1`, externalID)
}

func (d Datasource) getTransfer(ctx context.Context, where string, arg string) (*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "Fetching transfer from db")
	defer span.End()

	row := d.db().QueryRowContext(ctx, `SELECT `+transferColumns+` FROM payouts.transfers `+where, arg)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transfer '%s' not found", arg), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfer", err)
	}
	return t, nil
}

func (d Datasource) UpdateTransfer(ctx context.Context, t *model.Transfer) error {
	ctx, span := tracer.Start(ctx, "Updating transfer")
	defer span.End()

	t.UpdatedAt = time.Now().UTC()
	result, err := d.db().ExecContext(ctx, `
		UPDATE payouts.transfers
		SET status = $2, external_id = $3, tenant_charge_id = $4, failure_reason = $5, updated_at = $6
		WHERE transfer_id = $1
	`, t.TransferID, t.Status, nullString(t.ExternalID), nullString(t.TenantChargeID), nullString(t.FailureReason), t.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transfer", err)
	}
	return requireAffected(result, fmt.Sprintf("Transfer '%s' not found", t.TransferID))
}

// SetTransferExternalID stores the provider reference once. A transfer that
// already carries a reference is left untouched and reported as a conflict.
func (d Datasource) SetTransferExternalID(ctx context.Context, transferID, externalID string) error {
	result, err := d.db().ExecContext(ctx, `
		UPDATE payouts.transfers
		SET external_id = $2, updated_at = $3
		WHERE transfer_id = $1 AND external_id IS NULL
	`, transferID, externalID, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to store provider reference", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transfer '%s' already has a provider reference", transferID), nil)
	}
	return nil
}

// GetStuckTransfers returns processing transfers untouched since updatedBefore, oldest first.
func (d Datasource) GetStuckTransfers(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "Fetching stuck transfers")
	defer span.End()

	rows, err := d.db().QueryContext(ctx,
		`SELECT `+transferColumns+` FROM payouts.transfers WHERE status = 'processing' AND updated_at < $1 ORDER BY updated_at LIMIT $2`,
		updatedBefore, limit,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stuck transfers", err)
	}
	defer rows.Close()

	transfers := []*model.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transfer", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating transfers", err)
	}
	return transfers, nil
}

func requireAffected(result sql.Result, notFound string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, notFound, nil)
	}
	return nil
}
