package repository

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,

	`CREATE TABLE IF NOT EXISTS profiles (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		username    TEXT NOT NULL UNIQUE,
		full_name   TEXT,
		avatar_url  TEXT
	);`,

	`CREATE TABLE IF NOT EXISTS messages (
		id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		sender_id         UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		receiver_id       UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		content           TEXT NOT NULL DEFAULT '',
		read              BOOLEAN NOT NULL DEFAULT FALSE,
		file_url          TEXT,
		file_type         TEXT,
		reply_to_id       UUID REFERENCES messages(id) ON DELETE SET NULL,
		reply_to_content  TEXT
	);`,

	`CREATE INDEX IF NOT EXISTS idx_messages_pair_created
		ON messages (sender_id, receiver_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread
		ON messages (receiver_id) WHERE NOT read;`,
}

var teardown = []string{
	`DROP TABLE IF EXISTS messages;`,
	`DROP TABLE IF EXISTS profiles;`,
}

// Tables lists the tables owned by the schema in creation order.
var Tables = []string{"profiles", "messages"}

// InitSchema creates the chat tables and indexes. It is idempotent.
func InitSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// DropSchema removes every chat table and its data.
func DropSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range teardown {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}
	return nil
}

// Truncate empties every chat table but keeps the schema.
func Truncate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, `TRUNCATE TABLE messages, profiles CASCADE;`); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
