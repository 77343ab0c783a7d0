package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/rewind/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"json debug", Config{Level: "debug", Format: "json"}, false},
		{"console warn", Config{Level: "warn", Format: "console"}, false},
		{"bad level", Config{Level: "verbose"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	logger, err := New(Config{Level: "warn", Format: "json"}, nil)
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_OTelBridge(t *testing.T) {
	logger, err := New(Config{Level: "info", Format: "json"}, noop.NewLoggerProvider())
	require.NoError(t, err)
	require.NotNil(t, logger)

	// The bridged core still honors the configured level.
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestSecret_RedactsValue(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	logger.Info("connecting", Secret("token", config.Secret("ghp_supersecret")))

	entries := logs.All()
	require.Len(t, entries, 1)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range entries[0].Context {
		f.AddTo(enc)
	}
	nested, ok := enc.Fields["token"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED:15]", nested["token"])
}

func TestRedactedString(t *testing.T) {
	field := RedactedString("password", "hunter2")
	assert.Equal(t, "[REDACTED:7]", field.String)
}
