package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tel.Active())
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutEndpoint(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: true, ServiceName: "rewind"})
	require.NoError(t, err)
	assert.False(t, tel.Active())
}

func TestNew_RequiresServiceName(t *testing.T) {
	_, err := New(context.Background(), Config{
		Enabled:  true,
		Endpoint: "localhost:4318",
	})
	assert.Error(t, err)
}

func TestNew_InstallsProviders(t *testing.T) {
	// The OTLP/HTTP exporter connects lazily, so provider setup
	// succeeds without a live collector.
	tel, err := New(context.Background(), Config{
		Enabled:     true,
		ServiceName: "rewind",
		Endpoint:    "http://localhost:4318",
		Insecure:    true,
	})
	require.NoError(t, err)
	assert.True(t, tel.Active())
	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.LoggerProvider())
}

func TestShutdown_NilSafe(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "collector:443", stripScheme("https://collector:443"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
