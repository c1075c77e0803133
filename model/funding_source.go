package model

import "time"

const (
	VerificationUnverified = "unverified"
	VerificationPending    = "pending"
	VerificationVerified   = "verified"
)

// FundingSource is a bank account registered with the provider, owned by a
// contractor or by the tenant itself (OwnerID == TenantID).
type FundingSource struct {
	FundingSourceID    string    `json:"funding_source_id"`
	TenantID           string    `json:"tenant_id"`
	OwnerID            string    `json:"owner_id"`
	ProviderURI        string    `json:"provider_uri"`
	Name               string    `json:"name"`
	IsDefault          bool      `json:"is_default"`
	VerificationStatus string    `json:"verification_status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (f *FundingSource) IsVerified() bool {
	return f.VerificationStatus == VerificationVerified
}
