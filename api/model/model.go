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
package model

import (
	"errors"
	"regexp"

	"github.com/blnkfinance/payouts/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var (
	routingNumberPattern = regexp.MustCompile(`^\d{9}$`)
	accountNumberPattern = regexp.MustCompile(`^\d{4,17}$`)
)

func positiveAmount(maxPlaces int32) validation.RuleFunc {
	return func(value interface{}) error {
		amount, ok := value.(decimal.Decimal)
		if !ok {
			return errors.New("invalid amount")
		}
		if !amount.IsPositive() {
			return errors.New("must be greater than zero")
		}
		if !amount.Equal(amount.Round(maxPlaces)) {
			return errors.New("must have at most two decimal places")
		}
		return nil
	}
}

func (t *CreateTransaction) ValidateCreateTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.UserID, validation.Required),
		validation.Field(&t.JobID, validation.Required),
		validation.Field(&t.Value, validation.By(positiveAmount(2))),
		validation.Field(&t.Location),
	)
}

func (l Location) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&l.Longitude, validation.Min(-180.0), validation.Max(180.0)),
	)
}

func (t *CreateTransfer) ValidateCreateTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.TransactionIDs, validation.Required, validation.Each(validation.Required)),
	)
}

func (f *CreateFundingSource) ValidateCreateFundingSource() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&f.RoutingNumber, validation.Required, validation.Match(routingNumberPattern).Error("must be 9 digits")),
		validation.Field(&f.AccountNumber, validation.Required, validation.Match(accountNumberPattern).Error("must be 4 to 17 digits")),
		validation.Field(&f.BankAccountType, validation.In("checking", "savings")),
	)
}

func (v *VerifyMicroDeposits) ValidateVerifyMicroDeposits() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.Amount1, validation.By(positiveAmount(2))),
		validation.Field(&v.Amount2, validation.By(positiveAmount(2))),
	)
}

func (q *ListTransactions) ValidateListTransactions() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Status, validation.When(q.Status != "", validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if _, ok := model.ParseStatus(s); !ok {
				return errors.New("unknown status")
			}
			return nil
		}))),
		validation.Field(&q.Limit, validation.Min(0), validation.Max(500)),
		validation.Field(&q.Offset, validation.Min(0)),
	)
}
