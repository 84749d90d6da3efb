package control

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-aio/api"
)

func TestParseConfig_OverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
backend = "completion"
batch_capacity = 64
workers = 4
log_level = "debug"
pin_workers = true
`))
	require.NoError(t, err)
	assert.Equal(t, BackendCompletion, cfg.Backend)
	assert.Equal(t, 64, cfg.BatchCapacity)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.PinWorkers)
	assert.Equal(t, DefaultConfig().MaxInlineInvocations, cfg.MaxInlineInvocations)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig(strings.NewReader(`workers = 1`))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = ParseConfig(strings.NewReader(`backend = "kqueue"`))
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	_, err = ParseConfig(strings.NewReader(`workers = [`))
	assert.Error(t, err)
}

func TestConfigStore_SetConfigNotifiesListeners(t *testing.T) {
	cs := NewConfigStore(DefaultConfig())
	var got []Config
	cs.OnReload(func(c Config) { got = append(got, c) })

	require.NoError(t, cs.SetConfig(map[string]any{"max_inline_invocations": 3, "log_level": "trace"}))
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].MaxInlineInvocations)
	assert.Equal(t, 3, cs.GetSnapshot()["max_inline_invocations"])
	assert.Equal(t, "trace", cs.Get().LogLevel)
}

func TestConfigStore_RejectsBadUpdateAtomically(t *testing.T) {
	cs := NewConfigStore(DefaultConfig())
	before := cs.Get()
	called := false
	cs.OnReload(func(Config) { called = true })

	err := cs.SetConfig(map[string]any{"workers": 8, "bogus": 1})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	err = cs.SetConfig(map[string]any{"workers": "eight"})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	err = cs.SetConfig(map[string]any{"pin_workers": "yes"})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	err = cs.SetConfig(map[string]any{"batch_capacity": 1})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	assert.Equal(t, before, cs.Get())
	assert.False(t, called)
}

func TestConfigStore_ConcurrentReaders(t *testing.T) {
	cs := NewConfigStore(DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					_ = cs.SetConfig(map[string]any{"max_inline_invocations": j})
				} else {
					_ = cs.GetSnapshot()
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestReloadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("workers = 6\nbackend = \"completion\"\n"), 0o600))

	cs := NewConfigStore(DefaultConfig())
	var reloaded Config
	cs.OnReload(func(c Config) { reloaded = c })
	require.NoError(t, ReloadFile(cs, path))
	assert.Equal(t, 6, reloaded.Workers)
	assert.Equal(t, BackendCompletion, cs.Get().Backend)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)

	assert.Error(t, ReloadFile(cs, filepath.Join(dir, "missing.toml")))
}

func TestConfigStore_ListenerAddedDuringReloadSeesNextChange(t *testing.T) {
	cs := NewConfigStore(DefaultConfig())
	var late []int
	registered := false
	cs.OnReload(func(Config) {
		if !registered {
			registered = true
			cs.OnReload(func(c Config) { late = append(late, c.MaxInlineInvocations) })
		}
	})

	require.NoError(t, cs.SetConfig(map[string]any{"max_inline_invocations": 1}))
	assert.Empty(t, late)
	require.NoError(t, cs.SetConfig(map[string]any{"max_inline_invocations": 2}))
	assert.Equal(t, []int{2}, late)
}
