package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tenantcart/apiserver/types"
)

// MemoryAccountStore is a thread-safe in-process account store used for tests
// and local runs without a database.
type MemoryAccountStore struct {
	mu sync.RWMutex
	// Structure: [tenantID][userID]account
	data map[string]map[string]types.Account
	now  func() time.Time
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		data: make(map[string]map[string]types.Account),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryAccountStore) Put(_ context.Context, account types.Account) error {
	if err := KeyOf(account).validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if existing, ok := m.lookup(KeyOf(account)); ok {
		account.Version = existing.Version + 1
	}
	m.set(copyAccount(normalize(account)))
	return nil
}

func (m *MemoryAccountStore) Create(_ context.Context, account types.Account) error {
	if err := KeyOf(account).validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(KeyOf(account)); ok {
		return ErrAlreadyExists
	}
	now := m.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	m.set(copyAccount(normalize(account)))
	return nil
}

func (m *MemoryAccountStore) Get(_ context.Context, key Key) (types.Account, error) {
	if err := key.validate(); err != nil {
		return types.Account{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.lookup(key)
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return copyAccount(account), nil
}

func (m *MemoryAccountStore) QueryByTenant(_ context.Context, tenantID string) ([]types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := m.data[tenantID]
	accounts := make([]types.Account, 0, len(users))
	for _, account := range users {
		accounts = append(accounts, copyAccount(account))
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].UserID < accounts[j].UserID
	})
	return accounts, nil
}

func (m *MemoryAccountStore) UpdatePartial(_ context.Context, key Key, field string, value any) error {
	if err := key.validate(); err != nil {
		return err
	}
	if err := validateField(field); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.lookup(key)
	if !ok {
		return ErrNotFound
	}
	data, err := setDataField(account.Data, field, value)
	if err != nil {
		return err
	}
	account.Data = data
	m.touch(&account)
	m.set(account)
	return nil
}

func (m *MemoryAccountStore) AppendOrder(_ context.Context, key Key, order types.Order) ([]types.Order, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	orders := make([]types.Order, len(account.Data.Orders), len(account.Data.Orders)+1)
	copy(orders, account.Data.Orders)
	account.Data.Orders = append(orders, order)
	m.touch(&account)
	m.set(account)
	return copyOrders(account.Data.Orders), nil
}

// lookup and set MUST be called while holding m.mu.
func (m *MemoryAccountStore) lookup(key Key) (types.Account, bool) {
	users, ok := m.data[key.TenantID]
	if !ok {
		return types.Account{}, false
	}
	account, ok := users[key.UserID]
	return account, ok
}

func (m *MemoryAccountStore) set(account types.Account) {
	if m.data[account.TenantID] == nil {
		m.data[account.TenantID] = make(map[string]types.Account)
	}
	m.data[account.TenantID][account.UserID] = account
}

func (m *MemoryAccountStore) touch(account *types.Account) {
	account.UpdatedAt = m.now()
	account.Version++
}

// setDataField replaces one member of the data blob using its JSON name, the
// same addressing the other backends use.
func setDataField(data types.AccountData, field string, value any) (types.AccountData, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return data, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return data, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return data, fmt.Errorf("encode %s: %w", field, err)
	}
	fields[field] = encoded

	raw, err = json.Marshal(fields)
	if err != nil {
		return data, err
	}
	var updated types.AccountData
	if err := json.Unmarshal(raw, &updated); err != nil {
		return data, fmt.Errorf("decode %s: %w", field, err)
	}
	return updated, nil
}

func copyAccount(account types.Account) types.Account {
	account.Data.Orders = copyOrders(account.Data.Orders)
	if account.Data.Attributes != nil {
		attrs := make(map[string]string, len(account.Data.Attributes))
		for k, v := range account.Data.Attributes {
			attrs[k] = v
		}
		account.Data.Attributes = attrs
	}
	return account
}

func copyOrders(orders []types.Order) []types.Order {
	if orders == nil {
		return []types.Order{}
	}
	out := make([]types.Order, len(orders))
	copy(out, orders)
	return out
}
