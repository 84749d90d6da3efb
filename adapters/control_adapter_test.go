package adapters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-aio/adapters"
	"github.com/momentics/hioload-aio/api"
	"github.com/momentics/hioload-aio/control"
)

func TestControlAdapterBasic(t *testing.T) {
	ctrl := adapters.NewControlAdapter(control.DefaultConfig())
	cfg := ctrl.GetConfig()
	assert.Equal(t, 1024, cfg["batch_capacity"])

	called := false
	ctrl.OnReload(func() { called = true })
	require.NoError(t, ctrl.SetConfig(map[string]any{"batch_capacity": 16}))
	assert.True(t, called, "reload hook not called")
	assert.Equal(t, 16, ctrl.GetConfig()["batch_capacity"])

	assert.ErrorIs(t, ctrl.SetConfig(map[string]any{"k": 1}), api.ErrInvalidArgument)

	ctrl.Metrics().Add(control.MetricReactorRounds, 2)
	ctrl.RegisterDebugProbe("selector.keys", func() any { return 3 })
	stats := ctrl.Stats()
	assert.Equal(t, int64(2), stats[control.MetricReactorRounds])
	assert.Equal(t, 3, stats["debug.selector.keys"])
	assert.Contains(t, stats, "debug.platform.cpus")
}
