package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hackgods/clinic-box-booking/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	l, err := New(config.Config{Env: config.EnvProd, LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New(config.Config{Env: config.EnvDev, LogLevel: "loud", LogFormat: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
