package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tenantcart/apiserver/types"
)

const accountColumns = `tenant_id, user_id, password_hash, data, version, created_at, updated_at`

// PostgresAccountStore persists accounts in the accounts table, keeping the
// data blob as JSONB.
type PostgresAccountStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresAccountStore(db *sql.DB) *PostgresAccountStore {
	return &PostgresAccountStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *PostgresAccountStore) Put(ctx context.Context, account types.Account) error {
	if err := KeyOf(account).validate(); err != nil {
		return err
	}
	now := r.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account = normalize(account)

	dataJSON, err := json.Marshal(account.Data)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
			data = EXCLUDED.data,
			version = accounts.version + 1,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		account.TenantID,
		account.UserID,
		account.PasswordHash,
		dataJSON,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres put: %w", err)
	}
	return nil
}

func (r *PostgresAccountStore) Create(ctx context.Context, account types.Account) error {
	if err := KeyOf(account).validate(); err != nil {
		return err
	}
	now := r.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	account = normalize(account)

	dataJSON, err := json.Marshal(account.Data)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`
	result, err := r.db.ExecContext(
		ctx,
		query,
		account.TenantID,
		account.UserID,
		account.PasswordHash,
		dataJSON,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres create: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (r *PostgresAccountStore) Get(ctx context.Context, key Key) (types.Account, error) {
	if err := key.validate(); err != nil {
		return types.Account{}, err
	}

	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = $1 AND user_id = $2`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, key.TenantID, key.UserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, fmt.Errorf("postgres get: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountStore) QueryByTenant(ctx context.Context, tenantID string) ([]types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE tenant_id = $1
		ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	defer rows.Close()

	accounts := make([]types.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres query: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query: %w", err)
	}
	return accounts, nil
}

func (r *PostgresAccountStore) UpdatePartial(ctx context.Context, key Key, field string, value any) error {
	if err := key.validate(); err != nil {
		return err
	}
	if err := validateField(field); err != nil {
		return err
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return err
	}

	const query = `
		UPDATE accounts
		SET data = jsonb_set(data, ARRAY[$3::text], $4::jsonb, true),
			version = version + 1,
			updated_at = $5
		WHERE tenant_id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, key.TenantID, key.UserID, field, valueJSON, r.now())
	if err != nil {
		return fmt.Errorf("postgres update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresAccountStore) AppendOrder(ctx context.Context, key Key, order types.Order) ([]types.Order, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	orderJSON, err := json.Marshal([]types.Order{order})
	if err != nil {
		return nil, err
	}

	// The whole append happens in one row update, so concurrent buyers
	// serialize on the row lock instead of overwriting each other.
	const query = `
		UPDATE accounts
		SET data = jsonb_set(
				data,
				'{orders}',
				CASE WHEN jsonb_typeof(data->'orders') = 'array' THEN data->'orders' ELSE '[]'::jsonb END || $3::jsonb,
				true),
			version = version + 1,
			updated_at = $4
		WHERE tenant_id = $1 AND user_id = $2
		RETURNING data`
	var dataJSON []byte
	err = r.db.QueryRowContext(ctx, query, key.TenantID, key.UserID, orderJSON, r.now()).Scan(&dataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres append order: %w", err)
	}

	var data types.AccountData
	if err := json.Unmarshal(dataJSON, &data); err != nil {
		return nil, fmt.Errorf("postgres append order: decode data: %w", err)
	}
	if data.Orders == nil {
		return []types.Order{}, nil
	}
	return data.Orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	var dataJSON []byte
	if err := row.Scan(
		&account.TenantID,
		&account.UserID,
		&account.PasswordHash,
		&dataJSON,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return types.Account{}, err
	}
	if err := json.Unmarshal(dataJSON, &account.Data); err != nil {
		return types.Account{}, fmt.Errorf("decode data: %w", err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}
