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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transferRowColumns = []string{"transfer_id", "tenant_id", "admin_id", "user_id", "source_uri", "destination_uri", "value", "currency", "status", "external_id", "tenant_charge_id", "failure_reason", "created_at", "updated_at"}

func TestRecordTransfer(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	transfer := &model.Transfer{
		TransferID:     "tra_1",
		TenantID:       "tenant_1",
		AdminID:        "admin_1",
		UserID:         "user_1",
		SourceURI:      "https://provider.test/funding-sources/src",
		DestinationURI: "https://provider.test/funding-sources/dst",
		Value:          decimal.RequireFromString("15.00"),
		Currency:       "USD",
		Status:         model.StatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectExec("INSERT INTO payouts.transfers").
		WithArgs("tra_1", "tenant_1", "admin_1", "user_1", transfer.SourceURI, transfer.DestinationURI, "15", "USD", "new", nil, nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := ds.RecordTransfer(context.Background(), transfer)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransferForUpdate(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM payouts.transfers WHERE transfer_id = \$1 FOR UPDATE`).
		WithArgs("tra_1").
		WillReturnRows(sqlmock.NewRows(transferRowColumns).
			AddRow("tra_1", "tenant_1", "admin_1", "user_1", "src", "dst", "15.00", "USD", "processing", "https://provider.test/transfers/abc", nil, nil, now, now))

	transfer, err := ds.GetTransferForUpdate(context.Background(), "tra_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, transfer.Status)
	assert.Equal(t, "https://provider.test/transfers/abc", transfer.ExternalID)
	assert.True(t, transfer.Submitted())
	assert.Empty(t, transfer.FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransferByExternalID_NotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(`SELECT .* FROM payouts.transfers WHERE external_id = \$1`).
		WithArgs("https://provider.test/transfers/unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetTransferByExternalID(context.Background(), "https://provider.test/transfers/unknown")
	assert.True(t, apierror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransferByExternalID_BareResourceID(t *testing.T) {
	ds, mock := newMockDatasource(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM payouts.transfers WHERE external_id = \$1::text OR right\(external_id, length\(\$1::text\) \+ 11\) = '/transfers/' \|\| \$1::text`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(transferRowColumns).
			AddRow("tra_1", "tenant_1", "admin_1", "user_1", "src", "dst", "15.00", "USD", "processing", "https://provider.test/transfers/abc", nil, nil, now, now))

	transfer, err := ds.GetTransferByExternalID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "tra_1", transfer.TransferID)
	assert.Equal(t, "https://provider.test/transfers/abc", transfer.ExternalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTransfer(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec("UPDATE payouts.transfers").
		WithArgs("tra_1", "failed", nil, nil, "insufficient funds", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateTransfer(context.Background(), &model.Transfer{
		TransferID:    "tra_1",
		Status:        model.StatusFailed,
		FailureReason: "insufficient funds",
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTransferExternalID_OnlyOnce(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(`UPDATE payouts.transfers\s+SET external_id = \$2, updated_at = \$3\s+WHERE transfer_id = \$1 AND external_id IS NULL`).
		WithArgs("tra_1", "https://provider.test/transfers/abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payouts.transfers`).
		WithArgs("tra_1", "https://provider.test/transfers/def", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, ds.SetTransferExternalID(context.Background(), "tra_1", "https://provider.test/transfers/abc"))

	err := ds.SetTransferExternalID(context.Background(), "tra_1", "https://provider.test/transfers/def")
	code, _ := apierror.CodeOf(err)
	assert.Equal(t, apierror.ErrConflict, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStuckTransfers(t *testing.T) {
	ds, mock := newMockDatasource(t)
	cutoff := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT .* FROM payouts.transfers WHERE status = 'processing' AND updated_at < \$1 ORDER BY updated_at LIMIT \$2`).
		WithArgs(cutoff, 10).
		WillReturnRows(sqlmock.NewRows(transferRowColumns).
			AddRow("tra_1", "tenant_1", "admin_1", "user_1", "src", "dst", "15.00", "USD", "processing", nil, nil, nil, cutoff, cutoff))

	transfers, err := ds.GetStuckTransfers(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.False(t, transfers[0].Submitted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStuckTransfers_QueryError(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(`SELECT .* FROM payouts.transfers`).WillReturnError(errors.New("connection reset"))

	_, err := ds.GetStuckTransfers(context.Background(), time.Now(), 10)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
