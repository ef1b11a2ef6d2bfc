package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/CivStat/MetricBoard/internal/domain/user"
)

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, agency_id, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.AgencyID, u.Enabled)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, role, agency_id, enabled, created_at, updated_at
		 FROM users WHERE email = $1`, email)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user by email")
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, role, agency_id, enabled, created_at, updated_at
		 FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, name, password_hash, role, agency_id, enabled, created_at, updated_at
		 FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	return execExpectOne(tag, err, "update password for user %s", id)
}

func scanUser(row scannable) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.AgencyID, &u.Enabled, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// --- Refresh tokens ---

func (s *Store) CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error {
	rt.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rt.ID, rt.UserID, rt.TokenHash, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM refresh_tokens WHERE token_hash = $1`, tokenHash)

	var rt user.RefreshToken
	if err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt); err != nil {
		return nil, notFoundWrap(err, "get refresh token")
	}
	return &rt, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
