package model

import (
	"github.com/shopspring/decimal"
)

type CreateFundingSource struct {
	OwnerID         string `json:"owner_id"`
	Name            string `json:"name"`
	RoutingNumber   string `json:"routing_number"`
	AccountNumber   string `json:"account_number"`
	BankAccountType string `json:"bank_account_type"`
}

type VerifyMicroDeposits struct {
	Amount1 decimal.Decimal `json:"amount1"`
	Amount2 decimal.Decimal `json:"amount2"`
}
