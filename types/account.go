package types

import "time"

const (
	// RoleAdmin is granted to accounts created with the "tenant" user type.
	RoleAdmin = "admin"
	// RoleUser is the default role.
	RoleUser = "user"

	// UserTypeTenant marks the account that owns a tenant.
	UserTypeTenant = "tenant"
	// UserTypeUser marks a regular shopper within a tenant.
	UserTypeUser = "user"
)

// Account represents a user within a tenant.
// It is stored as a single record keyed by (TenantID, UserID).
type Account struct {
	// TenantID is the partition key; every query is scoped to one tenant.
	TenantID string `json:"tenantID" dynamodbav:"tenantID"`

	// UserID is the sort key, unique within a tenant.
	UserID string `json:"userID" dynamodbav:"userID"`

	// PasswordHash stores the bcrypt hash of the account password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" dynamodbav:"passwordHash"`

	// Data holds the role, the order history and free-form metadata.
	Data AccountData `json:"data" dynamodbav:"data"`

	// Version is incremented by every mutation of the record.
	Version int64 `json:"-" dynamodbav:"version"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`

	// UpdatedAt is the timestamp of the most recent mutation.
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// AccountData is the open-ended metadata blob attached to an account.
type AccountData struct {
	// UserType is what the client chose at signup ("tenant" or "user").
	UserType string `json:"userType,omitempty" dynamodbav:"userType,omitempty"`

	// Role is derived from UserType at signup: "admin" for tenants, else "user".
	Role string `json:"role,omitempty" dynamodbav:"role,omitempty"`

	// Orders is the append-only purchase history, oldest first.
	Orders []Order `json:"orders" dynamodbav:"orders"`

	// Attributes keeps any other signup metadata. Objects and arrays are held as
	// their JSON encoding.
	Attributes map[string]string `json:"attributes,omitempty" dynamodbav:"attributes,omitempty"`
}

// IsAdmin reports whether the account administers its tenant.
func (a Account) IsAdmin() bool {
	return a.Data.Role == RoleAdmin
}

// TenantSummary aggregates the accounts and orders of one tenant.
type TenantSummary struct {
	TenantID string `json:"tenantID"`
	Users    int    `json:"users"`
	Admins   int    `json:"admins"`
	Orders   int    `json:"orders"`
	Revenue  int64  `json:"revenue"`
}
