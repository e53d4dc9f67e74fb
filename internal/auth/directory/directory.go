package directory

import (
	"context"
	"errors"

	"testapi/internal/auth"
)

var ErrNotFound = errors.New("directory: user not found")

// User is the stored record for one provider subject.
type User struct {
	ID          string
	Subject     string
	Provider    string
	Email       string
	DisplayName string
	Role        auth.Role
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{Subject: u.Subject, Role: u.Role}
}

// Directory maps external identities to stored users. It is the ONLY
// place where first-login provisioning happens.
type Directory interface {
	// FindOrProvision returns the user for identity.Subject, creating it
	// with the default role when absent. isNew is true only for the call
	// that created the record, even under concurrent first logins.
	FindOrProvision(
		ctx context.Context,
		identity *auth.Identity,
	) (user *User, isNew bool, err error)

	Find(ctx context.Context, subject string) (*User, error)
}

func validate(identity *auth.Identity) error {
	if identity == nil {
		return errors.New("directory: identity is nil")
	}
	if identity.Subject == "" {
		return errors.New("directory: identity has no subject")
	}
	return nil
}
