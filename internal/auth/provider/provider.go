package provider

import (
	"context"
	"net/url"
	"time"

	"testapi/internal/auth"
)

// StateStore carries handshake state between begin and complete in
// tamper-evident client cookies. session.Jar implements it.
type StateStore interface {
	Get(name string) (string, bool)
	Set(name, value string, ttl time.Duration) error
	Clear(name string)
}

// Provider defines the contract every external sign-in provider must
// implement. Implementations return identity facts only and must not
// perform user provisioning or credential management.
type Provider interface {
	// Name returns the sign-in type (e.g. "openstack", "jira").
	Name() string

	// Begin returns the URL the browser is redirected to. Any state the
	// callback will need goes into state.
	Begin(ctx context.Context, state StateStore) (redirectURL string, err error)

	// Complete consumes the provider callback and returns a normalized
	// identity. Handshake state is cleared whether or not it succeeds.
	Complete(
		ctx context.Context,
		params url.Values,
		state StateStore,
	) (*auth.Identity, error)
}
