package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
)

const userColumns = `id, username, password_hash, role, email, created_at`

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var email sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &email, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	return u, nil
}

// NormalizeUsername is the form usernames are stored and looked up in.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CreateUser creates a new user. An empty email is stored as NULL.
func CreateUser(ctx context.Context, conn db.DBTX, username, passwordHash, role, email string) (*model.User, error) {
	var emailArg any
	if email != "" {
		emailArg = email
	}
	result, err := conn.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, role, email) VALUES (?, ?, ?, ?)`,
		NormalizeUsername(username), passwordHash, role, emailArg,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, conn, id)
}

// GetUser returns a user by ID, or nil if it does not exist.
func GetUser(ctx context.Context, conn db.DBTX, id int64) (*model.User, error) {
	u, err := scanUser(conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns a user by username, or nil if it does not exist.
func GetUserByUsername(ctx context.Context, conn db.DBTX, username string) (*model.User, error) {
	u, err := scanUser(conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, NormalizeUsername(username),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by email, or nil if it does not exist.
func GetUserByEmail(ctx context.Context, conn db.DBTX, email string) (*model.User, error) {
	u, err := scanUser(conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// ListUsers returns all users.
func ListUsers(ctx context.Context, conn db.DBTX) ([]model.User, error) {
	rows, err := conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, conn db.DBTX, id int64, passwordHash string) error {
	result, err := conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user. Their reservations stay behind and drop out of
// the listings.
func DeleteUser(ctx context.Context, conn db.DBTX, id int64) error {
	result, err := conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
