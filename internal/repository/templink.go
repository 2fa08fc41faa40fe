package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tierhost/tierhost/internal/model"
)

// Common errors for temporary link repository operations.
var (
	ErrLinkNotFound = errors.New("temporary link not found")
	ErrTokenExists  = errors.New("token already exists")
)

// CreateTemporaryLink inserts a new link. A token collision yields
// ErrTokenExists; a missing target file yields ErrFileNotFound.
func (r *Repository) CreateTemporaryLink(ctx context.Context, l *model.TemporaryLink) error {
	query := `
		INSERT INTO temporary_links (id, issuer_id, file_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query, l.ID, l.IssuerID, l.FileID, l.Token, l.ExpiresAt, l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "temporary_links_token_key") {
			return ErrTokenExists
		}
		if isForeignKeyViolation(err, "temporary_links_file_id_fkey") {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to create temporary link: %w", err)
	}

	return nil
}

// GetTemporaryLinkByToken retrieves a link by its token.
// This is the hot path for redemption.
func (r *Repository) GetTemporaryLinkByToken(ctx context.Context, token string) (*model.TemporaryLink, error) {
	query := `
		SELECT id, issuer_id, file_id, token, expires_at, created_at
		FROM temporary_links
		WHERE token = $1
	`

	var l model.TemporaryLink
	err := r.pool.QueryRow(ctx, query, token).Scan(&l.ID, &l.IssuerID, &l.FileID, &l.Token, &l.ExpiresAt, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get temporary link: %w", err)
	}

	return &l, nil
}
