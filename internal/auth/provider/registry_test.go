package provider

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testapi/internal/auth"
)

type namedProvider string

func (n namedProvider) Name() string { return string(n) }

func (n namedProvider) Begin(context.Context, StateStore) (string, error) { return "", nil }

func (n namedProvider) Complete(context.Context, url.Values, StateStore) (*auth.Identity, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	var missing Provider
	r := NewRegistry(namedProvider("jira"), missing, namedProvider("openstack"))

	p, err := r.Get("jira")
	require.NoError(t, err)
	assert.Equal(t, "jira", p.Name())

	_, err = r.Get("cas")
	assert.EqualError(t, err, "unknown sign-in type: cas")

	assert.Equal(t, []string{"jira", "openstack"}, r.Names())
}
