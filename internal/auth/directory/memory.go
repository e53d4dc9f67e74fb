package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"testapi/internal/auth"
)

// MemoryDirectory keeps users in process. Used when no database is
// configured.
type MemoryDirectory struct {
	defaultRole auth.Role

	mu    sync.Mutex
	users map[string]User
}

func NewMemoryDirectory(defaultRole auth.Role) *MemoryDirectory {
	return &MemoryDirectory{
		defaultRole: defaultRole,
		users:       make(map[string]User),
	}
}

func (m *MemoryDirectory) FindOrProvision(
	_ context.Context,
	identity *auth.Identity,
) (*User, bool, error) {

	if err := validate(identity); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[identity.Subject]; ok {
		return &u, false, nil
	}

	u := User{
		ID:          uuid.NewString(),
		Subject:     identity.Subject,
		Provider:    identity.Provider,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Role:        m.defaultRole,
	}
	m.users[u.Subject] = u
	return &u, true, nil
}

func (m *MemoryDirectory) Find(_ context.Context, subject string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// SetRole stands in for the administrative action that promotes users.
func (m *MemoryDirectory) SetRole(subject string, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[subject]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	m.users[subject] = u
	return nil
}

// Len is the number of stored users.
func (m *MemoryDirectory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
