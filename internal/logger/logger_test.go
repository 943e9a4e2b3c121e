package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("nonsense"))
}

func TestInitializeWritesToFile(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	file := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, Initialize("debug", file))
	require.NotNil(t, Log)

	Log.Info("hello", WithUserID("u1"), WithConnID("c1"))
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
}
