package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Transaction is a single unit of work owed to a contractor.
type Transaction struct {
	TransactionID string                 `json:"transaction_id"`
	TenantID      string                 `json:"tenant_id"`
	UserID        string                 `json:"user_id"`
	AdminID       string                 `json:"admin_id"`
	JobID         string                 `json:"job_id"`
	TransferID    string                 `json:"transfer_id,omitempty"`
	Value         decimal.Decimal        `json:"value"`
	Status        Status                 `json:"status"`
	Location      *Location              `json:"location,omitempty"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type TransactionFilter struct {
	UserID     string `json:"user_id"`
	TransferID string `json:"transfer_id"`
	Status     Status `json:"status"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

func (transaction *Transaction) CanBeCancelled() bool {
	return transaction.Status.CanBeCancelled()
}

// IsLinked reports whether the transaction has been batched into a transfer.
func (transaction *Transaction) IsLinked() bool {
	return transaction.TransferID != ""
}
