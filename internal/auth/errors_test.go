package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("complete: %w", Rejected("jira", 500, errors.New("boom")))

	assert.ErrorIs(t, err, ErrProviderRejected)
	assert.NotErrorIs(t, err, ErrProviderUnreachable)
	assert.Equal(t, KindProviderRejected, KindOf(err))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Unreachable("jira", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "jira: provider_unreachable")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", Cancelled("openstack"), "Authentication canceled."},
		{"rejected with status", Rejected("jira", 401, nil), "Error: Connection to Jira failed. Error code(401). Please contact an Administrator"},
		{"unreachable", Unreachable("jira", errors.New("x")), "Error: Connection to Jira failed. Please contact an Administrator"},
		{"plain error", errors.New("secret detail"), "Error: sign-in failed. Please contact an Administrator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
}
