package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tierhost/tierhost/internal/model"
)

// ErrAPIKeyNotFound indicates no active key matched.
var ErrAPIKeyNotFound = errors.New("API key not found")

// KeyCandidate is an active API key together with the user it belongs to.
type KeyCandidate struct {
	Key   model.APIKey
	Owner model.User
}

// CreateAPIKey inserts a new API key into the database.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.UserID,
		key.KeyHash,
		key.KeyPrefix,
		pq.Array(key.Scopes),
		key.Name,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	return nil
}

// GetKeyCandidatesByPrefix returns every active key sharing a prefix, joined
// with its owner. The caller verifies the secret against each candidate.
func (r *Repository) GetKeyCandidatesByPrefix(ctx context.Context, prefix string) ([]KeyCandidate, error) {
	query := `
		SELECT k.id, k.user_id, k.key_hash, k.key_prefix, k.scopes, k.name, k.created_at,
			u.id, u.username, u.tier, u.created_at
		FROM api_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.key_prefix = $1 AND k.revoked_at IS NULL
	`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get API keys by prefix: %w", err)
	}
	defer rows.Close()

	var out []KeyCandidate
	for rows.Next() {
		var c KeyCandidate
		var scopes []string
		err := rows.Scan(
			&c.Key.ID, &c.Key.UserID, &c.Key.KeyHash, &c.Key.KeyPrefix, pq.Array(&scopes), &c.Key.Name, &c.Key.CreatedAt,
			&c.Owner.ID, &c.Owner.Username, &c.Owner.Tier, &c.Owner.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		c.Key.Scopes = scopes
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return out, nil
}

// RevokeAPIKey revokes an API key by setting revoked_at.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}
