package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/leenbank/leenbank/internal/db"
)

const settingJWTSecret = "jwt_secret"

// EnsureSetting returns the value stored under key, storing candidate first if
// the key is unset. INSERT OR IGNORE followed by a read keeps concurrent
// first runs agreeing on one value.
func EnsureSetting(ctx context.Context, conn db.DBTX, key, candidate string) (string, error) {
	_, err := conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing setting %s: %w", key, err)
	}

	var value string
	err = conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, nil
}

// GetJWTSecret returns the token signing key, generating it on first use.
func GetJWTSecret(ctx context.Context, conn db.DBTX) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return EnsureSetting(ctx, conn, settingJWTSecret, hex.EncodeToString(buf))
}
