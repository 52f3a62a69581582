package tracing

import (
	"context"
	"testing"

	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/stretchr/testify/require"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true}, "aiquiz-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Endpoint: "http://192.0.2.1:4318", Enabled: false}, "aiquiz-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable address: nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), config.TracingConfig{Endpoint: "http://192.0.2.1:4318", Enabled: true}, "aiquiz-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
