package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"testapi/internal/auth"
)

// Pool is the subset of *pgxpool.Pool the directory needs; pgxmock
// pools satisfy it too.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Pool = (*pgxpool.Pool)(nil)

// PostgresDirectory stores users in the users table created by
// db.RunMigration.
type PostgresDirectory struct {
	pool        Pool
	defaultRole auth.Role
}

func NewPostgresDirectory(pool Pool, defaultRole auth.Role) *PostgresDirectory {
	return &PostgresDirectory{pool: pool, defaultRole: defaultRole}
}

const insertUser = `
	INSERT INTO users (id, subject, provider, email, fullname, role)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (subject) DO NOTHING
	RETURNING id, subject, provider, email, fullname, role
`

const selectUser = `
	SELECT id, subject, provider, email, fullname, role
	FROM users
	WHERE subject = $1
`

func (d *PostgresDirectory) FindOrProvision(
	ctx context.Context,
	identity *auth.Identity,
) (*User, bool, error) {

	if err := validate(identity); err != nil {
		return nil, false, err
	}

	// 1. Insert unless the subject exists. The unique constraint makes
	//    this the single point that decides who wins a first-login race.
	u, err := scanUser(d.pool.QueryRow(ctx, insertUser,
		uuid.NewString(),
		identity.Subject,
		identity.Provider,
		identity.Email,
		identity.DisplayName,
		string(d.defaultRole),
	))
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("directory: provision %s: %w", identity.Subject, err)
	}

	// 2. Somebody already owns the subject; read their record.
	u, err = scanUser(d.pool.QueryRow(ctx, selectUser, identity.Subject))
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflicted on insert yet absent on read: the row was removed
		// between the two statements.
		return nil, false, auth.Conflict(identity.Subject, err)
	}
	if err != nil {
		return nil, false, fmt.Errorf("directory: lookup %s: %w", identity.Subject, err)
	}
	return u, false, nil
}

func (d *PostgresDirectory) Find(ctx context.Context, subject string) (*User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, selectUser, subject))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: lookup %s: %w", subject, err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Subject, &u.Provider, &u.Email, &u.DisplayName, &role); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
