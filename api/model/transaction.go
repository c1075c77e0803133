package model

import (
	"strings"

	"github.com/blnkfinance/payouts/model"
	"github.com/shopspring/decimal"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

type CreateTransaction struct {
	UserID   string                 `json:"user_id"`
	JobID    string                 `json:"job_id"`
	Value    decimal.Decimal        `json:"value"`
	Location *Location              `json:"location"`
	MetaData map[string]interface{} `json:"meta_data"`
}

type ListTransactions struct {
	UserID     string `form:"user_id"`
	TransferID string `form:"transfer_id"`
	Status     string `form:"status"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

type CreateTransfer struct {
	TransactionIDs []string `json:"transaction_ids"`
}

func (t *CreateTransaction) ToTransaction() model.Transaction {
	txn := model.Transaction{
		UserID:   t.UserID,
		JobID:    t.JobID,
		Value:    t.Value,
		MetaData: t.MetaData,
	}
	if t.Location != nil {
		txn.Location = &model.Location{
			Latitude:  t.Location.Latitude,
			Longitude: t.Location.Longitude,
			Address:   t.Location.Address,
		}
	}
	return txn
}

func (q *ListTransactions) ToFilter() model.TransactionFilter {
	status, _ := model.ParseStatus(q.Status)
	return model.TransactionFilter{
		UserID:     strings.TrimSpace(q.UserID),
		TransferID: strings.TrimSpace(q.TransferID),
		Status:     status,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
}
