package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
//
// reservations.item_id and reservations.user_id carry no foreign keys: items
// and users are hard-deleted and their reservations are kept as history.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('admin', 'student')),
    email         TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id             INTEGER PRIMARY KEY,
    name_en        TEXT NOT NULL,
    name_nl        TEXT NOT NULL,
    description_en TEXT NOT NULL DEFAULT '',
    description_nl TEXT NOT NULL DEFAULT '',
    location       TEXT NOT NULL CHECK (location IN ('Heerlen', 'Maastricht', 'Sittard')),
    quantity       INTEGER NOT NULL CHECK (quantity >= 0),
    reserved       INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0 AND reserved <= quantity),
    image          BLOB,
    image_mime     TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reservations (
    id          INTEGER PRIMARY KEY,
    item_id     INTEGER NOT NULL,
    user_id     INTEGER NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity >= 1),
    status      TEXT NOT NULL DEFAULT 'PENDING'
                CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'RETURN_PENDING', 'RETURNED', 'ARCHIVED')),
    reserved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reservation_events (
    id             INTEGER PRIMARY KEY,
    reservation_id INTEGER NOT NULL,
    item_id        INTEGER NOT NULL,
    actor_id       INTEGER NOT NULL,
    from_status    TEXT NOT NULL DEFAULT '',
    to_status      TEXT NOT NULL,
    quantity       INTEGER NOT NULL,
    reserved_delta INTEGER NOT NULL DEFAULT 0,
    at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations are applied in order after the schema. Each one must be
// idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: emails are unique among students only.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
	     ON users(email) WHERE email IS NOT NULL`,
	// Migration 2: listing and reconciliation look reservations up by item and user.
	`CREATE INDEX IF NOT EXISTS idx_reservations_item ON reservations(item_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id, status)`,
	// Migration 3: history is read per item and per reservation.
	`CREATE INDEX IF NOT EXISTS idx_reservation_events_item ON reservation_events(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservation_events_reservation ON reservation_events(reservation_id)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
