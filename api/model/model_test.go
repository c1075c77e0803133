package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateCreateTransaction(t *testing.T) {
	valid := CreateTransaction{UserID: "user_1", JobID: "job_1", Value: decimal.RequireFromString("10.50")}
	assert.NoError(t, valid.ValidateCreateTransaction())

	tests := []struct {
		name   string
		mutate func(*CreateTransaction)
		field  string
	}{
		{"missing user", func(c *CreateTransaction) { c.UserID = "" }, "user_id"},
		{"missing job", func(c *CreateTransaction) { c.JobID = "" }, "job_id"},
		{"zero value", func(c *CreateTransaction) { c.Value = decimal.Zero }, "value"},
		{"three decimals", func(c *CreateTransaction) { c.Value = decimal.RequireFromString("1.234") }, "value"},
		{"bad latitude", func(c *CreateTransaction) { c.Location = &Location{Latitude: 91} }, "location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.ValidateCreateTransaction()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.field)
			}
		})
	}
}

func TestValidateCreateTransfer(t *testing.T) {
	assert.NoError(t, (&CreateTransfer{TransactionIDs: []string{"txn_1"}}).ValidateCreateTransfer())
	assert.Error(t, (&CreateTransfer{}).ValidateCreateTransfer())
	assert.Error(t, (&CreateTransfer{TransactionIDs: []string{"txn_1", ""}}).ValidateCreateTransfer())
}

func TestValidateCreateFundingSource(t *testing.T) {
	req := CreateFundingSource{Name: "Checking", RoutingNumber: "222222226", AccountNumber: "123456789"}
	assert.NoError(t, req.ValidateCreateFundingSource())

	req.RoutingNumber = "12345"
	assert.Error(t, req.ValidateCreateFundingSource())

	req.RoutingNumber = "222222226"
	req.BankAccountType = "brokerage"
	assert.Error(t, req.ValidateCreateFundingSource())
}

func TestValidateListTransactions(t *testing.T) {
	assert.NoError(t, (&ListTransactions{Status: "processing"}).ValidateListTransactions())
	assert.Error(t, (&ListTransactions{Status: "paid"}).ValidateListTransactions())
	assert.Error(t, (&ListTransactions{Limit: 1000}).ValidateListTransactions())
}

func TestToTransaction(t *testing.T) {
	req := CreateTransaction{UserID: "user_1", JobID: "job_1", Value: decimal.RequireFromString("3"), Location: &Location{Latitude: 6.5, Longitude: 3.3}}
	txn := req.ToTransaction()
	assert.Equal(t, "user_1", txn.UserID)
	assert.NotNil(t, txn.Location)
	assert.Equal(t, 6.5, txn.Location.Latitude)
}
