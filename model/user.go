package model

import "strings"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleContractor Role = "contractor"
)

type User struct {
	UserID              string `json:"user_id"`
	TenantID            string `json:"tenant_id"`
	Email               string `json:"email"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	ProviderCustomerURI string `json:"provider_customer_uri,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// RequestContext carries the authenticated caller through service calls.
type RequestContext struct {
	TenantID string                 `json:"tenant_id"`
	UserID   string                 `json:"user_id"`
	Role     Role                   `json:"role"`
	Claims   map[string]interface{} `json:"claims,omitempty"`
}

func (rc RequestContext) IsAdmin() bool {
	return rc.Role == RoleAdmin
}
