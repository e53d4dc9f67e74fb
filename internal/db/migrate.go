package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// The unique constraint on subject is what makes concurrent first
// logins provision a single record.
const usersMigration = `
CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY,
    subject text NOT NULL,
    provider text NOT NULL,
    email text NOT NULL DEFAULT '',
    fullname text NOT NULL DEFAULT '',
    role text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT users_subject_unique UNIQUE (subject)
);

CREATE INDEX IF NOT EXISTS users_role_idx
ON users (role);
`

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func RunMigration(ctx context.Context, db Execer) error {
	_, err := db.Exec(ctx, usersMigration)
	return err
}
