package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tollgate/tollgate/internal/model"
)

// Common errors for operator key repository operations.
var (
	ErrOperatorKeyNotFound = errors.New("operator key not found")
)

const operatorKeyColumns = `id, key_hash, key_prefix, scopes, name, revoked_at, last_used_at, created_at`

// CreateOperatorKey inserts a new operator key.
func (r *Repository) CreateOperatorKey(ctx context.Context, key *model.OperatorKey) error {
	query := `
		INSERT INTO operator_keys (id, key_hash, key_prefix, scopes, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.KeyHash,
		key.KeyPrefix,
		pq.Array(key.Scopes),
		key.Name,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create operator key: %w", err)
	}

	return nil
}

// GetOperatorKeyByID retrieves an operator key by its ID.
func (r *Repository) GetOperatorKeyByID(ctx context.Context, id string) (*model.OperatorKey, error) {
	query := `SELECT ` + operatorKeyColumns + ` FROM operator_keys WHERE id = $1`

	key, err := scanOperatorKey(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOperatorKeyNotFound
	}
	return key, err
}

// GetOperatorKeysByPrefix retrieves all active keys matching a prefix.
// Used during authentication to find candidate keys for verification.
func (r *Repository) GetOperatorKeysByPrefix(ctx context.Context, prefix string) ([]*model.OperatorKey, error) {
	query := `SELECT ` + operatorKeyColumns + ` FROM operator_keys WHERE key_prefix = $1 AND revoked_at IS NULL`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get operator keys by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*model.OperatorKey
	for rows.Next() {
		key, err := scanOperatorKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operator key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operator keys: %w", err)
	}

	return keys, nil
}

// RevokeOperatorKey revokes a key by setting revoked_at.
func (r *Repository) RevokeOperatorKey(ctx context.Context, id string) error {
	query := `
		UPDATE operator_keys
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke operator key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrOperatorKeyNotFound
	}

	return nil
}

// UpdateOperatorKeyLastUsed updates the last_used_at timestamp.
// Should be called asynchronously after successful authentication.
func (r *Repository) UpdateOperatorKeyLastUsed(ctx context.Context, id string) error {
	query := `UPDATE operator_keys SET last_used_at = $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("failed to update operator key last used: %w", err)
	}

	return nil
}

// scanOperatorKey works for both pgx.Row and pgx.Rows.
func scanOperatorKey(row pgx.Row) (*model.OperatorKey, error) {
	var key model.OperatorKey
	var scopes []string

	err := row.Scan(
		&key.ID,
		&key.KeyHash,
		&key.KeyPrefix,
		pq.Array(&scopes),
		&key.Name,
		&key.RevokedAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Scopes = scopes
	return &key, nil
}
