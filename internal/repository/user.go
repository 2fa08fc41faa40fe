package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/tierhost/tierhost/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
)

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, username, tier, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, string(user.Tier), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `
		SELECT id, username, tier, created_at
		FROM users
		WHERE username = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, username).Scan(&user.ID, &user.Username, &user.Tier, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return &user, nil
}

// userDetailQuery selects users with the ids of their files and issued links.
const userDetailQuery = `
	SELECT u.id, u.username, u.tier, u.created_at,
		COALESCE((SELECT array_agg(f.id ORDER BY f.created_at) FROM files f WHERE f.owner_id = u.id), '{}'),
		COALESCE((SELECT array_agg(l.id ORDER BY l.created_at) FROM temporary_links l WHERE l.issuer_id = u.id), '{}')
	FROM users u
`

// GetUserDetail retrieves a user with its owned file ids and issued link ids.
func (r *Repository) GetUserDetail(ctx context.Context, id string) (*model.UserDetail, error) {
	detail, err := scanUserDetail(r.pool.QueryRow(ctx, userDetailQuery+` WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return detail, nil
}

// ListUserDetails retrieves every user with owned file and issued link ids.
func (r *Repository) ListUserDetails(ctx context.Context) ([]*model.UserDetail, error) {
	rows, err := r.pool.Query(ctx, userDetailQuery+` ORDER BY u.created_at, u.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.UserDetail
	for rows.Next() {
		detail, err := scanUserDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func scanUserDetail(row pgx.Row) (*model.UserDetail, error) {
	var d model.UserDetail
	var fileIDs, linkIDs pq.StringArray

	if err := row.Scan(&d.ID, &d.Username, &d.Tier, &d.CreatedAt, &fileIDs, &linkIDs); err != nil {
		return nil, err
	}

	d.FileIDs = []string(fileIDs)
	d.LinkIDs = []string(linkIDs)
	return &d, nil
}
