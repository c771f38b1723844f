package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/example/fileuploader/internal/config"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{"explicit warn", "warn", zapcore.WarnLevel},
		{"invalid falls back to info", "loud", zapcore.InfoLevel},
		{"debug", "debug", zapcore.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Settings{Env: config.EnvProduction, Log: config.LogConfig{Level: tc.level}}
			l, err := New(cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tc.want))
			if tc.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tc.want-1))
			}
		})
	}
}

func TestVerbose(t *testing.T) {
	cfg := &config.Settings{Env: config.EnvProduction, Log: config.LogConfig{Level: "error", Format: "console"}}
	Verbose(cfg)
	l, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
