package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is one outgoing provider money movement covering a batch of transactions.
type Transfer struct {
	TransferID     string          `json:"transfer_id"`
	TenantID       string          `json:"tenant_id"`
	AdminID        string          `json:"admin_id"`
	UserID         string          `json:"user_id"`
	SourceURI      string          `json:"source_uri"`
	DestinationURI string          `json:"destination_uri"`
	Value          decimal.Decimal `json:"value"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"status"`
	ExternalID     string          `json:"external_id,omitempty"`
	TenantChargeID string          `json:"tenant_charge_id,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Transactions   []*Transaction  `json:"transactions,omitempty"`
}

// Submitted reports whether the provider has accepted this transfer.
func (t *Transfer) Submitted() bool {
	return t.ExternalID != ""
}
