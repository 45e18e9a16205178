package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tenantcart/apiserver/types"
)

func newAccount(tenantID, userID string) types.Account {
	return types.Account{
		TenantID:     tenantID,
		UserID:       userID,
		PasswordHash: "hash",
		Data:         types.AccountData{UserType: types.UserTypeUser, Role: types.RoleUser},
	}
}

func TestMemoryCreateIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()

	if err := s.Create(ctx, newAccount("acme", "alice")); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := newAccount("acme", "alice")
	dup.PasswordHash = "other"
	if err := s.Create(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.Get(ctx, Key{TenantID: "acme", UserID: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PasswordHash != "hash" {
		t.Fatalf("original account was overwritten")
	}
	if got.Data.Orders == nil || len(got.Data.Orders) != 0 {
		t.Fatalf("expected empty non-nil orders, got %#v", got.Data.Orders)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}
}

func TestMemoryPutUpserts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()

	if err := s.Put(ctx, newAccount("acme", "alice")); err != nil {
		t.Fatalf("put: %v", err)
	}
	replaced := newAccount("acme", "alice")
	replaced.PasswordHash = "new"
	if err := s.Put(ctx, replaced); err != nil {
		t.Fatalf("put again: %v", err)
	}

	got, err := s.Get(ctx, Key{TenantID: "acme", UserID: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PasswordHash != "new" || got.Version != 2 {
		t.Fatalf("unexpected account after upsert: %+v", got)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	s := NewMemoryAccountStore()
	if _, err := s.Get(context.Background(), Key{TenantID: "acme", UserID: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(context.Background(), Key{TenantID: "", UserID: "x"}); err == nil {
		t.Fatalf("expected key validation error")
	}
}

func TestMemoryQueryByTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()

	for _, k := range []Key{{"acme", "bob"}, {"acme", "alice"}, {"globex", "alice"}, {"acme-2", "carol"}} {
		if err := s.Create(ctx, newAccount(k.TenantID, k.UserID)); err != nil {
			t.Fatalf("create %v: %v", k, err)
		}
	}

	accounts, err := s.QueryByTenant(ctx, "acme")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	for _, a := range accounts {
		if a.TenantID != "acme" {
			t.Fatalf("query leaked account of tenant %q", a.TenantID)
		}
	}
	if accounts[0].UserID != "alice" || accounts[1].UserID != "bob" {
		t.Fatalf("unexpected order: %s, %s", accounts[0].UserID, accounts[1].UserID)
	}

	empty, err := s.QueryByTenant(ctx, "initech")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty result, got %v %v", empty, err)
	}
}

func TestMemoryUpdatePartial(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	key := Key{TenantID: "acme", UserID: "alice"}
	if err := s.Create(ctx, newAccount(key.TenantID, key.UserID)); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := s.Get(ctx, key)

	orders := []types.Order{{ID: types.NumericProductID(1), Name: "Widget", Price: 500}}
	if err := s.UpdatePartial(ctx, key, OrdersField, orders); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(after.Data.Orders) != 1 || after.Data.Orders[0].Name != "Widget" {
		t.Fatalf("orders not updated: %+v", after.Data.Orders)
	}
	if after.Data.Role != types.RoleUser || after.PasswordHash != "hash" {
		t.Fatalf("other attributes changed: %+v", after)
	}
	if after.Version != before.Version+1 || after.UpdatedAt.Before(before.UpdatedAt) {
		t.Fatalf("bookkeeping not bumped: %+v", after)
	}

	if err := s.UpdatePartial(ctx, Key{TenantID: "acme", UserID: "ghost"}, OrdersField, orders); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdatePartial(ctx, key, "data.orders", orders); err == nil {
		t.Fatalf("expected invalid field error")
	}
}

func TestMemoryAppendOrderSequential(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	key := Key{TenantID: "acme", UserID: "alice"}
	if err := s.Create(ctx, newAccount(key.TenantID, key.UserID)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 5
	for i := 0; i < n; i++ {
		orders, err := s.AppendOrder(ctx, key, types.Order{ID: types.NumericProductID(int64(i)), Name: "p"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if len(orders) != i+1 {
			t.Fatalf("expected %d orders, got %d", i+1, len(orders))
		}
	}

	got, _ := s.Get(ctx, key)
	for i, o := range got.Data.Orders {
		if o.ID != types.NumericProductID(int64(i)) {
			t.Fatalf("order %d has id %s", i, o.ID)
		}
	}
}

func TestMemoryAppendOrderConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	key := Key{TenantID: "acme", UserID: "alice"}
	if err := s.Create(ctx, newAccount(key.TenantID, key.UserID)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AppendOrder(ctx, key, types.Order{ID: types.NumericProductID(int64(i))}); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(ctx, key)
	if len(got.Data.Orders) != n {
		t.Fatalf("lost appends: expected %d orders, got %d", n, len(got.Data.Orders))
	}
}

func TestMemoryAppendOrderMissingAccount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	key := Key{TenantID: "acme", UserID: "ghost"}

	if _, err := s.AppendOrder(ctx, key, types.Order{ID: types.NumericProductID(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("append must not create a record")
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccountStore()
	key := Key{TenantID: "acme", UserID: "alice"}
	if err := s.Create(ctx, newAccount(key.TenantID, key.UserID)); err != nil {
		t.Fatalf("create: %v", err)
	}
	orders, _ := s.AppendOrder(ctx, key, types.Order{ID: types.NumericProductID(1), Name: "Widget"})
	orders[0].Name = "mutated"

	got, _ := s.Get(ctx, key)
	if got.Data.Orders[0].Name != "Widget" {
		t.Fatalf("internal state was mutated through returned slice")
	}
}
