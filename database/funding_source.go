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
	"time"

	"github.com/blnkfinance/payouts/internal/apierror"
	"github.com/blnkfinance/payouts/model"
)

const fundingSourceColumns = `funding_source_id, tenant_id, owner_id, provider_uri, name, is_default, verification_status, created_at, updated_at`

func scanFundingSource(row rowScanner) (*model.FundingSource, error) {
	fs := &model.FundingSource{}
	err := row.Scan(
		&fs.FundingSourceID,
		&fs.TenantID,
		&fs.OwnerID,
		&fs.ProviderURI,
		&fs.Name,
		&fs.IsDefault,
		&fs.VerificationStatus,
		&fs.CreatedAt,
		&fs.UpdatedAt,
	)
	return fs, err
}

func (d Datasource) RecordFundingSource(ctx context.Context, fs *model.FundingSource) (*model.FundingSource, error) {
	_, err := d.db().ExecContext(ctx,
		`INSERT INTO payouts.funding_sources(`+fundingSourceColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		fs.FundingSourceID, fs.TenantID, fs.OwnerID, fs.ProviderURI, fs.Name, fs.IsDefault, fs.VerificationStatus, fs.CreatedAt, fs.UpdatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record funding source", err)
	}
	return fs, nil
}

func (d Datasource) GetFundingSource(ctx context.Context, id string) (*model.FundingSource, error) {
	row := d.db().QueryRowContext(ctx, `SELECT `+fundingSourceColumns+` FROM payouts.funding_sources WHERE funding_source_id = $1`, id)
	fs, err := scanFundingSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Funding source '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve funding source", err)
	}
	return fs, nil
}

func (d Datasource) GetDefaultFundingSource(ctx context.Context, tenantID, ownerID string) (*model.FundingSource, error) {
	ctx, span := tracer.Start(ctx, "Fetching default funding source")
	defer span.End()

	row := d.db().QueryRowContext(ctx,
		`SELECT `+fundingSourceColumns+` FROM payouts.funding_sources WHERE tenant_id = $1 AND owner_id = $2 AND is_default = true`,
		tenantID, ownerID,
	)
	fs, err := scanFundingSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No default funding source for '%s'", ownerID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve funding source", err)
	}
	return fs, nil
}

func (d Datasource) UpdateFundingSource(ctx context.Context, fs *model.FundingSource) error {
	fs.UpdatedAt = time.Now().UTC()
	result, err := d.db().ExecContext(ctx, `
		UPDATE payouts.funding_sources
		SET name = $2, is_default = $3, verification_status = $4, updated_at = $5
		WHERE funding_source_id = $1
	`, fs.FundingSourceID, fs.Name, fs.IsDefault, fs.VerificationStatus, fs.UpdatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update funding source", err)
	}
	return requireAffected(result, fmt.Sprintf("Funding source '%s' not found", fs.FundingSourceID))
}

func (d Datasource) ClearDefaultFundingSource(ctx context.Context, tenantID, ownerID string) error {
	_, err := d.db().ExecContext(ctx, `
		UPDATE payouts.funding_sources
		SET is_default = false, updated_at = $3
		WHERE tenant_id = $1 AND owner_id = $2 AND is_default = true
	`, tenantID, ownerID, time.Now().UTC())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clear default funding source", err)
	}
	return nil
}
