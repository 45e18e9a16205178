package store

import (
	"context"
	"errors"
	"strings"

	"github.com/tenantcart/apiserver/types"
)

// OrdersField is the data member that holds an account's purchase history.
const OrdersField = "orders"

// AttributesField is the data member that holds free-form account metadata.
const AttributesField = "attributes"

// Key identifies an account record. TenantID is the partition key and UserID
// the sort key.
type Key struct {
	TenantID string
	UserID   string
}

// AccountStore is the record store contract implemented by every backend.
type AccountStore interface {
	// Put unconditionally creates or replaces the record.
	Put(ctx context.Context, account types.Account) error
	// Create writes the record only if the key is unused, else ErrAlreadyExists.
	Create(ctx context.Context, account types.Account) error
	Get(ctx context.Context, key Key) (types.Account, error)
	QueryByTenant(ctx context.Context, tenantID string) ([]types.Account, error)
	// UpdatePartial replaces data.<field> and bumps updatedAt and version.
	UpdatePartial(ctx context.Context, key Key, field string, value any) error
	// AppendOrder atomically appends to data.orders and returns the full list.
	AppendOrder(ctx context.Context, key Key, order types.Order) ([]types.Order, error)
}

var (
	_ AccountStore = (*DynamoAccountStore)(nil)
	_ AccountStore = (*PostgresAccountStore)(nil)
	_ AccountStore = (*MemoryAccountStore)(nil)
)

// KeyOf returns the key of an account.
func KeyOf(account types.Account) Key {
	return Key{TenantID: account.TenantID, UserID: account.UserID}
}

func (k Key) validate() error {
	if strings.TrimSpace(k.TenantID) == "" || strings.TrimSpace(k.UserID) == "" {
		return errors.New("tenant id and user id are required")
	}
	return nil
}

func validateField(field string) error {
	if strings.TrimSpace(field) == "" || strings.ContainsAny(field, ".[]") {
		return errors.New("invalid data field")
	}
	return nil
}

// normalize makes sure an account always carries an orders list so that list
// appends never operate on a missing or null attribute.
func normalize(account types.Account) types.Account {
	if account.Data.Orders == nil {
		account.Data.Orders = []types.Order{}
	}
	if account.Version == 0 {
		account.Version = 1
	}
	return account
}
