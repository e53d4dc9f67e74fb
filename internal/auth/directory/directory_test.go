package directory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testapi/internal/auth"
)

var userColumns = []string{"id", "subject", "provider", "email", "fullname", "role"}

func testIdentity(subject string) *auth.Identity {
	return &auth.Identity{
		Provider:    "openstack",
		Subject:     subject,
		Email:       subject + "@example.org",
		DisplayName: "User " + subject,
	}
}

func TestMemoryDirectoryProvisionsOnce(t *testing.T) {
	d := NewMemoryDirectory(auth.RoleDefault)
	ctx := context.Background()

	u, isNew, err := d.FindOrProvision(ctx, testIdentity("U"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, auth.RoleDefault, u.Role)
	assert.Equal(t, "U@example.org", u.Email)

	require.NoError(t, d.SetRole("U", auth.RoleReviewer))

	u, isNew, err = d.FindOrProvision(ctx, testIdentity("U"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, auth.RoleReviewer, u.Role, "existing role must be returned, not reset")
}

func TestMemoryDirectoryConcurrentFirstLogin(t *testing.T) {
	d := NewMemoryDirectory(auth.RoleDefault)

	const callers = 32
	var (
		wg    sync.WaitGroup
		roles = make([]auth.Role, callers)
		news  = make([]bool, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, isNew, err := d.FindOrProvision(context.Background(), testIdentity("S"))
			assert.NoError(t, err)
			roles[i] = u.Role
			news[i] = isNew
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, d.Len())
	created := 0
	for i := range roles {
		assert.Equal(t, auth.RoleDefault, roles[i])
		if news[i] {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestMemoryDirectoryValidation(t *testing.T) {
	d := NewMemoryDirectory(auth.RoleDefault)

	_, _, err := d.FindOrProvision(context.Background(), nil)
	assert.Error(t, err)
	_, _, err = d.FindOrProvision(context.Background(), &auth.Identity{})
	assert.Error(t, err)

	_, err = d.Find(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, d.SetRole("nobody", auth.RoleAdmin), ErrNotFound)
}

// Subjects share one namespace across providers; the subject alone is
// the lookup key, as the credential carries nothing else.
func TestMemoryDirectorySubjectIsProviderAgnostic(t *testing.T) {
	d := NewMemoryDirectory(auth.RoleDefault)
	ctx := context.Background()

	first, isNew, err := d.FindOrProvision(ctx, testIdentity("U"))
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, d.SetRole("U", auth.RoleReviewer))

	other := testIdentity("U")
	other.Provider = "jira"
	u, isNew, err := d.FindOrProvision(ctx, other)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, u.ID)
	assert.Equal(t, "openstack", u.Provider)
	assert.Equal(t, auth.RoleReviewer, u.Role)
	assert.Equal(t, 1, d.Len())
}

func newMockDirectory(t *testing.T) (*PostgresDirectory, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresDirectory(mock, auth.RoleDefault), mock
}

func TestPostgresDirectoryProvisionsNewUser(t *testing.T) {
	d, mock := newMockDirectory(t)
	id := testIdentity("U")

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "U", "openstack", "U@example.org", "User U", "default").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("6f1c0c9e-8f3a-4d55-9b1e-8f2a4f2d7c10", "U", "openstack", "U@example.org", "User U", "default"))

	u, isNew, err := d.FindOrProvision(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, auth.Principal{Subject: "U", Role: auth.RoleDefault}, u.Principal())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryReturnsExistingRole(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "U", "openstack", "U@example.org", "User U", "default").
		WillReturnRows(pgxmock.NewRows(userColumns))
	mock.ExpectQuery("SELECT id, subject, provider, email, fullname, role").
		WithArgs("U").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("6f1c0c9e-8f3a-4d55-9b1e-8f2a4f2d7c10", "U", "jira", "u@example.org", "U", "reviewer"))

	u, isNew, err := d.FindOrProvision(context.Background(), testIdentity("U"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, auth.RoleReviewer, u.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryConflict(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "U", "openstack", "U@example.org", "User U", "default").
		WillReturnRows(pgxmock.NewRows(userColumns))
	mock.ExpectQuery("SELECT id, subject").
		WithArgs("U").
		WillReturnRows(pgxmock.NewRows(userColumns))

	_, _, err := d.FindOrProvision(context.Background(), testIdentity("U"))
	assert.ErrorIs(t, err, auth.ErrDirectoryConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryInsertError(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "U", "openstack", "U@example.org", "User U", "default").
		WillReturnError(errors.New("connection reset"))

	_, _, err := d.FindOrProvision(context.Background(), testIdentity("U"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, auth.Kind(""), auth.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDirectoryFind(t *testing.T) {
	d, mock := newMockDirectory(t)

	mock.ExpectQuery("SELECT id, subject").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(userColumns))

	_, err := d.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
