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
	"github.com/blnkfinance/payouts/provider"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BankAccount holds the account details sent to the provider. They are never stored.
type BankAccount struct {
	RoutingNumber string
	AccountNumber string
	Type          string
}

// AddFundingSource registers a bank account with the provider for owner and
// stores it unverified. Contractors may only add accounts for themselves; an
// admin may add one for any user of the tenant or for the tenant itself
// (OwnerID equal to the tenant id).
func (p *Payouts) AddFundingSource(ctx context.Context, rc model.RequestContext, fs model.FundingSource, account BankAccount) (*model.FundingSource, error) {
	ctx, span := tracer.Start(ctx, "AddFundingSource")
	defer span.End()

	if fs.OwnerID == "" {
		fs.OwnerID = rc.UserID
	}
	if !rc.IsAdmin() && fs.OwnerID != rc.UserID {
		return nil, forbidden()
	}
	if account.RoutingNumber == "" || account.AccountNumber == "" {
		return nil, invalidInput("routing_number and account_number are required")
	}

	owner, err := p.datasource.GetUser(ctx, rc.TenantID, fs.OwnerID)
	if err != nil {
		if apierror.IsNotFound(err) {
			return nil, invalidInput(fmt.Sprintf("owner %s does not exist", fs.OwnerID))
		}
		return nil, err
	}
	if owner.ProviderCustomerURI == "" {
		return nil, invalidInput(fmt.Sprintf("owner %s is not registered with the payment provider", fs.OwnerID))
	}

	accountType := account.Type
	if accountType == "" {
		accountType = "checking"
	}
	pctx, cancel := p.providerContext(ctx)
	ref, err := p.provider.CreateFundingSource(pctx, provider.FundingSourceRequest{
		CustomerURI:     owner.ProviderCustomerURI,
		RoutingNumber:   account.RoutingNumber,
		AccountNumber:   account.AccountNumber,
		BankAccountType: accountType,
		Name:            fs.Name,
	})
	cancel()
	if err != nil {
		return nil, providerError("payment provider rejected the funding source", err)
	}

	now := time.Now().UTC()
	fs.FundingSourceID = model.GenerateUUIDWithSuffix(model.FundingSourcePrefix)
	fs.TenantID = rc.TenantID
	fs.ProviderURI = ref
	fs.IsDefault = false
	fs.VerificationStatus = model.VerificationUnverified
	fs.CreatedAt = now
	fs.UpdatedAt = now
	return p.datasource.RecordFundingSource(ctx, &fs)
}

// InitiateMicroDeposits asks the provider to send the two verification deposits.
func (p *Payouts) InitiateMicroDeposits(ctx context.Context, rc model.RequestContext, id string) (*model.FundingSource, error) {
	fs, err := p.fundingSourceFor(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if fs.IsVerified() {
		return fs, nil
	}

	pctx, cancel := p.providerContext(ctx)
	err = p.provider.InitiateMicroDeposits(pctx, fs.ProviderURI)
	cancel()
	if err != nil {
		return nil, providerError("payment provider could not initiate micro-deposits", err)
	}

	fs.VerificationStatus = model.VerificationPending
	fs.UpdatedAt = time.Now().UTC()
	if err := p.datasource.UpdateFundingSource(ctx, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// VerifyMicroDeposits confirms the deposit amounts with the provider. The first
// verified funding source of an owner becomes its default.
func (p *Payouts) VerifyMicroDeposits(ctx context.Context, rc model.RequestContext, id string, amount1, amount2 decimal.Decimal) (*model.FundingSource, error) {
	fs, err := p.fundingSourceFor(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if fs.IsVerified() {
		return fs, nil
	}

	pctx, cancel := p.providerContext(ctx)
	err = p.provider.VerifyMicroDeposits(pctx, fs.ProviderURI, amount1, amount2)
	cancel()
	if err != nil {
		return nil, providerError("payment provider rejected the micro-deposit amounts", err)
	}

	err = p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		_, err := ds.GetDefaultFundingSource(ctx, fs.TenantID, fs.OwnerID)
		switch {
		case apierror.IsNotFound(err):
			fs.IsDefault = true
		case err != nil:
			return err
		}
		fs.VerificationStatus = model.VerificationVerified
		fs.UpdatedAt = time.Now().UTC()
		return ds.UpdateFundingSource(ctx, fs)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"funding_source_id": fs.FundingSourceID, "owner_id": fs.OwnerID, "default": fs.IsDefault}).Info("funding source verified")
	return fs, nil
}

// SetDefaultFundingSource makes a verified funding source the owner's default.
func (p *Payouts) SetDefaultFundingSource(ctx context.Context, rc model.RequestContext, id string) (*model.FundingSource, error) {
	fs, err := p.fundingSourceFor(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if !fs.IsVerified() {
		return nil, invalidInput("only verified funding sources can be the default")
	}
	if fs.IsDefault {
		return fs, nil
	}

	err = p.datasource.RunInTx(ctx, func(ds database.IDataSource) error {
		if err := ds.ClearDefaultFundingSource(ctx, fs.TenantID, fs.OwnerID); err != nil {
			return err
		}
		fs.IsDefault = true
		fs.UpdatedAt = time.Now().UTC()
		return ds.UpdateFundingSource(ctx, fs)
	})
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func (p *Payouts) fundingSourceFor(ctx context.Context, rc model.RequestContext, id string) (*model.FundingSource, error) {
	fs, err := p.datasource.GetFundingSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if fs.TenantID != rc.TenantID || (!rc.IsAdmin() && fs.OwnerID != rc.UserID) {
		return nil, notFound("funding source %s not found", id)
	}
	return fs, nil
}
