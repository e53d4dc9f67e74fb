package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFieldsAreSortedAndErrorsNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Use(zap.New(core))
	t.Cleanup(func() { Use(zap.NewNop()) })

	Warn("sign-in failed", map[string]any{
		"provider": "jira",
		"error":    errors.New("boom"),
		"attempt":  2,
	})
	Debug("quiet", nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	e := entries[0]
	assert.Equal(t, zapcore.WarnLevel, e.Level)
	assert.Equal(t, "sign-in failed", e.Message)

	keys := make([]string, 0, len(e.Context))
	for _, f := range e.Context {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"attempt", "error", "provider"}, keys)
	assert.Equal(t, "boom", e.ContextMap()["error"])

	assert.Empty(t, entries[1].Context)
}
