package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("nonsense"))
}

func TestInitializeWritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, Initialize("debug", logFile))
	defer func() { _ = Close() }()

	Log.Info("hello", WithUserID("u1"))
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))
}
