package gridboot

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func testSettings(t *testing.T) Settings {
	return Settings{
		HomePath:         t.TempDir(),
		InstanceName:     "node1",
		LogLevel:         "info",
		LogFormat:        "text",
		StartTimeout:     time.Minute,
		StopTimeout:      time.Second,
		OperationTimeout: time.Second,
	}
}

func TestModule_GraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		fx.Supply(testSettings(t)),
		fx.Supply(slog.Default()),
		Module(),
	)
	require.NoError(t, err)
}

func TestNew_StartsStopped(t *testing.T) {
	node := New(testSettings(t), nil)

	assert.Equal(t, NodeStopped, node.State())
	assert.Nil(t, node.Handle())
	assert.False(t, node.Readiness().IsReady())
	assert.NoError(t, node.Stop(context.Background()))
}

func TestNew_MalformedInstanceFailsWithConfigurationError(t *testing.T) {
	s := testSettings(t)
	s.InstanceName = "bad name"

	err := New(s, nil).Start(context.Background())

	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
