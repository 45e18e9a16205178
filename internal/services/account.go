package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tenantcart/apiserver/internal/store"
	"github.com/tenantcart/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 3

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Put(ctx context.Context, account types.Account) error
	Create(ctx context.Context, account types.Account) error
	Get(ctx context.Context, key store.Key) (types.Account, error)
	QueryByTenant(ctx context.Context, tenantID string) ([]types.Account, error)
	UpdatePartial(ctx context.Context, key store.Key, field string, value any) error
	AppendOrder(ctx context.Context, key store.Key, order types.Order) ([]types.Order, error)
}

// AccountService encapsulates signup, login and tenant listing use-cases.
type AccountService struct {
	repo     AccountRepository
	timeout  time.Duration
	hashCost int
}

// NewAccountService constructs an AccountService. Every repository call is
// bounded by timeout; zero leaves the caller's deadline untouched.
func NewAccountService(repo AccountRepository, timeout time.Duration) *AccountService {
	return &AccountService{
		repo:     repo,
		timeout:  timeout,
		hashCost: bcrypt.DefaultCost,
	}
}

// CreateAccountInput carries signup fields. Data is the free-form metadata
// sent by the client; see mergeAttributes for how it is stored.
type CreateAccountInput struct {
	TenantID string
	UserID   string
	Password string
	Data     map[string]any
}

// CreateAccount registers a new account. It fails with ErrAccountExists when
// the identity is already taken and never overwrites an existing record.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (types.Account, error) {
	account, err := s.newAccount(in)
	if err != nil {
		return types.Account{}, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return types.Account{}, ErrAccountExists
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// ImportAccount writes an account unconditionally, replacing any record with
// the same identity. Used for seeding.
func (s *AccountService) ImportAccount(ctx context.Context, in CreateAccountInput) (types.Account, error) {
	account, err := s.newAccount(in)
	if err != nil {
		return types.Account{}, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Put(ctx, account); err != nil {
		return types.Account{}, fmt.Errorf("import account: %w", err)
	}
	return account, nil
}

// AccountCreatedMessage is the user-facing confirmation for a signup.
func AccountCreatedMessage(account types.Account) string {
	if account.Data.UserType == types.UserTypeTenant {
		return "Tenant admin account created successfully!"
	}
	return "User account created successfully!"
}

// LookupAccount fetches an account without checking credentials.
func (s *AccountService) LookupAccount(ctx context.Context, tenantID, userID string) (types.Account, error) {
	key, err := accountKey(tenantID, userID)
	if err != nil {
		return types.Account{}, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

// VerifyCredentials returns the account when password matches its stored hash.
func (s *AccountService) VerifyCredentials(ctx context.Context, tenantID, userID, password string) (types.Account, error) {
	if password == "" {
		return types.Account{}, invalid("password", "password is required")
	}

	account, err := s.LookupAccount(ctx, tenantID, userID)
	if err != nil {
		return types.Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return types.Account{}, ErrInvalidPassword
		}
		return types.Account{}, fmt.Errorf("verify credentials: %w", err)
	}
	return account, nil
}

// ListTenantAccounts returns every account of one tenant.
func (s *AccountService) ListTenantAccounts(ctx context.Context, tenantID string) ([]types.Account, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, invalid("tenantID", "tenantID must be a non-empty string")
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	accounts, err := s.repo.QueryByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant accounts: %w", err)
	}

	scoped := make([]types.Account, 0, len(accounts))
	for _, account := range accounts {
		if account.TenantID == tenantID {
			scoped = append(scoped, account)
		}
	}
	return scoped, nil
}

// UpdateAttributes merges meta into the attributes of an existing account and
// returns the updated account. Keys mapped to null are removed.
func (s *AccountService) UpdateAttributes(ctx context.Context, tenantID, userID string, meta map[string]any) (types.Account, error) {
	if len(meta) == 0 {
		return types.Account{}, invalid("data", "data must be a non-empty object")
	}

	account, err := s.LookupAccount(ctx, tenantID, userID)
	if err != nil {
		return types.Account{}, err
	}
	attrs := mergeAttributes(account.Data.Attributes, meta)
	if attrs == nil {
		attrs = map[string]string{}
	}

	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.UpdatePartial(ctx, store.KeyOf(account), store.AttributesField, attrs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, fmt.Errorf("update attributes: %w", err)
	}
	account.Data.Attributes = attrs
	return account, nil
}

// TenantSummary aggregates user, admin and order totals of one tenant.
func (s *AccountService) TenantSummary(ctx context.Context, tenantID string) (types.TenantSummary, error) {
	accounts, err := s.ListTenantAccounts(ctx, tenantID)
	if err != nil {
		return types.TenantSummary{}, err
	}

	summary := types.TenantSummary{TenantID: strings.TrimSpace(tenantID)}
	for _, account := range accounts {
		summary.Users++
		if account.IsAdmin() {
			summary.Admins++
		}
		summary.Orders += len(account.Data.Orders)
		for _, order := range account.Data.Orders {
			summary.Revenue += order.Price
		}
	}
	return summary, nil
}

func (s *AccountService) newAccount(in CreateAccountInput) (types.Account, error) {
	key, err := accountKey(in.TenantID, in.UserID)
	if err != nil {
		return types.Account{}, err
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return types.Account{}, invalid("password", "password must be at least 3 characters long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.Account{}, invalid("password", "password must be at most 72 bytes long")
		}
		return types.Account{}, fmt.Errorf("hash password: %w", err)
	}

	return types.Account{
		TenantID:     key.TenantID,
		UserID:       key.UserID,
		PasswordHash: string(hash),
		Data:         accountData(in.Data),
	}, nil
}

// accountData derives the stored data blob from signup metadata. Role and
// orders are always server-assigned.
func accountData(meta map[string]any) types.AccountData {
	userType := types.UserTypeUser
	if v, ok := meta["userType"].(string); ok && strings.TrimSpace(v) != "" {
		userType = strings.TrimSpace(v)
	}

	role := types.RoleUser
	if userType == types.UserTypeTenant {
		role = types.RoleAdmin
	}

	return types.AccountData{
		UserType:   userType,
		Role:       role,
		Orders:     []types.Order{},
		Attributes: mergeAttributes(nil, meta),
	}
}

// mergeAttributes folds metadata into attrs and returns the result. Scalars
// are kept as their string form, objects and arrays as their JSON encoding.
// A null value removes the key. Server-owned keys are skipped.
func mergeAttributes(attrs map[string]string, meta map[string]any) map[string]string {
	var out map[string]string
	if len(attrs) > 0 {
		out = make(map[string]string, len(attrs)+len(meta))
		for k, v := range attrs {
			out[k] = v
		}
	}
	for k, v := range meta {
		switch k {
		case "userType", "role", "orders":
			continue
		}
		var value string
		switch typed := v.(type) {
		case nil:
			delete(out, k)
			continue
		case string:
			value = typed
		case float64, int, int64, bool:
			value = fmt.Sprint(typed)
		default:
			encoded, err := json.Marshal(typed)
			if err != nil {
				continue
			}
			value = string(encoded)
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = value
	}
	return out
}

func accountKey(tenantID, userID string) (store.Key, error) {
	key := store.Key{
		TenantID: strings.TrimSpace(tenantID),
		UserID:   strings.TrimSpace(userID),
	}
	if key.TenantID == "" {
		return store.Key{}, invalid("tenantID", "tenantID must be a non-empty string")
	}
	if key.UserID == "" {
		return store.Key{}, invalid("userID", "userID must be a non-empty string")
	}
	return key, nil
}

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
