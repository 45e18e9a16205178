package services

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tenantcart/apiserver/internal/store"
	"github.com/tenantcart/apiserver/types"
)

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Put(ctx context.Context, account types.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Create(ctx context.Context, account types.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Get(ctx context.Context, key store.Key) (types.Account, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(types.Account), args.Error(1)
}

func (m *MockAccountRepository) QueryByTenant(ctx context.Context, tenantID string) ([]types.Account, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdatePartial(ctx context.Context, key store.Key, field string, value any) error {
	args := m.Called(ctx, key, field, value)
	return args.Error(0)
}

func (m *MockAccountRepository) AppendOrder(ctx context.Context, key store.Key, order types.Order) ([]types.Order, error) {
	args := m.Called(ctx, key, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Order), args.Error(1)
}

type MockIdempotencyGuard struct {
	mock.Mock
}

func (m *MockIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyGuard) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	args := m.Called(ctx, channel, data, attrs)
	return args.String(0), args.Error(1)
}
