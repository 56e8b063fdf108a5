package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-adp-mobile/internal/models"
)

// CredentialPostgresRepository stores credentials in the session_credentials table,
// one row per namespace and key.
type CredentialPostgresRepository struct {
	db        *sqlx.DB
	namespace string
}

// NewCredentialPostgresRepository creates a PostgreSQL backed credential store.
func NewCredentialPostgresRepository(db *sqlx.DB, namespace string) *CredentialPostgresRepository {
	return &CredentialPostgresRepository{db: db, namespace: namespace}
}

// EnsureSchema creates the credentials table when missing.
func (r *CredentialPostgresRepository) EnsureSchema(ctx context.Context) error {
	const query = `CREATE TABLE IF NOT EXISTS session_credentials (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, key)
)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure session_credentials: %w", err)
	}
	return nil
}

// Get returns the value for key; found is false when no row exists.
func (r *CredentialPostgresRepository) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT namespace, key, value FROM session_credentials WHERE namespace = $1 AND key = $2 LIMIT 1`
	var row models.StoredCredential
	if err := r.db.GetContext(ctx, &row, query, r.namespace, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get credential %s: %w", key, err)
	}
	return row.Value, true, nil
}

// Put upserts value under key.
func (r *CredentialPostgresRepository) Put(ctx context.Context, key, value string) error {
	const query = `INSERT INTO session_credentials (namespace, key, value, updated_at) VALUES (:namespace, :key, :value, NOW())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	row := models.StoredCredential{Namespace: r.namespace, Key: key, Value: value}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("put credential %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key affects no rows and is not an error.
func (r *CredentialPostgresRepository) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM session_credentials WHERE namespace = $1 AND key = $2`
	if _, err := r.db.ExecContext(ctx, query, r.namespace, key); err != nil {
		return fmt.Errorf("delete credential %s: %w", key, err)
	}
	return nil
}
