package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tierhost/tierhost/internal/model"
)

// ErrFileNotFound indicates no file matched.
var ErrFileNotFound = errors.New("file not found")

const fileColumns = `f.id, f.owner_id, u.username, f.name, f.format, f.image_key, f.created_at, f.updated_at`

// CreateFile inserts a new file record.
func (r *Repository) CreateFile(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (id, owner_id, name, format, image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		f.ID,
		f.OwnerID,
		f.Name,
		string(f.Format),
		f.ImageKey,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// GetFileByID retrieves a file regardless of owner.
func (r *Repository) GetFileByID(ctx context.Context, id string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f JOIN users u ON u.id = f.owner_id WHERE f.id = $1`
	return r.getFile(ctx, query, id)
}

// GetOwnedFile retrieves a file only if it belongs to ownerID.
func (r *Repository) GetOwnedFile(ctx context.Context, ownerID, id string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f JOIN users u ON u.id = f.owner_id WHERE f.id = $1 AND f.owner_id = $2`
	return r.getFile(ctx, query, id, ownerID)
}

func (r *Repository) getFile(ctx context.Context, query string, args ...any) (*model.File, error) {
	f, err := scanFile(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListFilesByOwner retrieves every file owned by ownerID, oldest first.
func (r *Repository) ListFilesByOwner(ctx context.Context, ownerID string) ([]*model.File, error) {
	query := `SELECT ` + fileColumns + `
		FROM files f JOIN users u ON u.id = f.owner_id
		WHERE f.owner_id = $1
		ORDER BY f.created_at, f.id`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := make([]*model.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return files, nil
}

// UpdateFile persists name, format, image key and updated_at of an owned file.
func (r *Repository) UpdateFile(ctx context.Context, f *model.File) error {
	query := `
		UPDATE files
		SET name = $3, format = $4, image_key = $5, updated_at = $6
		WHERE id = $1 AND owner_id = $2
	`

	result, err := r.pool.Exec(ctx, query, f.ID, f.OwnerID, f.Name, string(f.Format), f.ImageKey, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrFileNotFound
	}

	return nil
}

// DeleteFile removes an owned file and every temporary link pointing at it
// in one transaction. It returns the tokens of the removed links.
func (r *Repository) DeleteFile(ctx context.Context, ownerID, id string) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the row first so a concurrent Generate cannot slip a link in.
	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM files WHERE id = $1 AND owner_id = $2 FOR UPDATE`, id, ownerID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to lock file: %w", err)
	}

	rows, err := tx.Query(ctx, `DELETE FROM temporary_links WHERE file_id = $1 RETURNING token`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete temporary links: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect deleted tokens: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit file delete: %w", err)
	}

	return tokens, nil
}

func scanFile(row pgx.Row) (*model.File, error) {
	var f model.File
	err := row.Scan(
		&f.ID,
		&f.OwnerID,
		&f.OwnerUsername,
		&f.Name,
		&f.Format,
		&f.ImageKey,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
