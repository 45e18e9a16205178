package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tenantcart/apiserver/internal/store"
	"github.com/tenantcart/apiserver/types"
)

const eventTypeOrderPlaced = "order.placed"

// IdempotencyGuard remembers purchase keys so a retried request is applied once.
type IdempotencyGuard interface {
	// Claim returns false when key was already claimed.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher sends order events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// OrderService records purchases and reads order history.
type OrderService struct {
	repo    AccountRepository
	timeout time.Duration
	guard   IdempotencyGuard
	events  EventPublisher
	channel string
	now     func() time.Time
	newID   func() string
}

type OrderServiceOption func(*OrderService)

// WithIdempotencyGuard enables Idempotency-Key handling for purchases.
func WithIdempotencyGuard(guard IdempotencyGuard) OrderServiceOption {
	return func(s *OrderService) {
		s.guard = guard
	}
}

// WithEventPublisher publishes an order.placed event to channel after every purchase.
func WithEventPublisher(events EventPublisher, channel string) OrderServiceOption {
	return func(s *OrderService) {
		s.events = events
		s.channel = channel
	}
}

func NewOrderService(repo AccountRepository, timeout time.Duration, opts ...OrderServiceOption) *OrderService {
	s := &OrderService{
		repo:    repo,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PurchaseInput describes one purchase. IdempotencyKey is optional.
type PurchaseInput struct {
	TenantID       string
	UserID         string
	Product        types.Order
	IdempotencyKey string
}

// RecordPurchase appends the product to the account's orders and returns the
// complete order list. The append is atomic in the backing store, so
// concurrent purchases for one account are all kept.
func (s *OrderService) RecordPurchase(ctx context.Context, in PurchaseInput) ([]types.Order, error) {
	key, err := accountKey(in.TenantID, in.UserID)
	if err != nil {
		return nil, err
	}
	order, err := validateProduct(in.Product)
	if err != nil {
		return nil, err
	}
	order.PurchaseID = s.newID()
	order.PurchasedAt = s.now()

	var claimKey string
	if idem := strings.TrimSpace(in.IdempotencyKey); idem != "" && s.guard != nil {
		claimKey = purchaseClaimKey(key, idem)
		claimed, err := s.guard.Claim(ctx, claimKey)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !claimed {
			return nil, ErrDuplicatePurchase
		}
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := s.repo.AppendOrder(storeCtx, key, order)
	if err != nil {
		if claimKey != "" {
			if releaseErr := s.guard.Release(context.WithoutCancel(ctx), claimKey); releaseErr != nil {
				log.Printf("release idempotency key for %s/%s: %v", key.TenantID, key.UserID, releaseErr)
			}
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	s.publishPlaced(ctx, key, order, len(orders))
	return orders, nil
}

// ListOrders returns the order history of an account, oldest first.
func (s *OrderService) ListOrders(ctx context.Context, tenantID, userID string) ([]types.Order, error) {
	key, err := accountKey(tenantID, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if account.Data.Orders == nil {
		return []types.Order{}, nil
	}
	return account.Data.Orders, nil
}

func (s *OrderService) publishPlaced(ctx context.Context, key store.Key, order types.Order, count int) {
	if s.events == nil || s.channel == "" {
		return
	}

	payload, err := json.Marshal(types.OrderPlacedEvent{
		TenantID:   key.TenantID,
		UserID:     key.UserID,
		Order:      order,
		OrderCount: count,
		OccurredAt: order.PurchasedAt,
	})
	if err != nil {
		log.Printf("encode order event for %s/%s: %v", key.TenantID, key.UserID, err)
		return
	}

	ctx, cancel := withStoreTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	attrs := map[string]string{
		"type":     eventTypeOrderPlaced,
		"tenantID": key.TenantID,
	}
	if _, err := s.events.Publish(ctx, s.channel, payload, attrs); err != nil {
		log.Printf("publish order event for %s/%s: %v", key.TenantID, key.UserID, err)
	}
}

func validateProduct(product types.Order) (types.Order, error) {
	if product.ID.IsZero() {
		return types.Order{}, invalid("product.id", "product.id is required")
	}
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return types.Order{}, invalid("product.name", "product.name must be a non-empty string")
	}
	if product.Price < 0 {
		return types.Order{}, invalid("product.price", "product.price must not be negative")
	}
	return product, nil
}

// purchaseClaimKey scopes an idempotency key to one account. The length
// prefixes keep ("a:b", "c") and ("a", "b:c") apart.
func purchaseClaimKey(key store.Key, idem string) string {
	return fmt.Sprintf("%d:%d:%s:%s:%s", len(key.TenantID), len(key.UserID), key.TenantID, key.UserID, idem)
}
