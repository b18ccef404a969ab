package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLevels(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	l, err := Init("debug", "json")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, l, L())

	l, err = Init("bogus", "console")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestSetNilFallsBackToNop(t *testing.T) {
	Set(nil)
	assert.NotPanics(t, func() {
		With(zap.String("component", "test")).Info("ignored")
	})
}
