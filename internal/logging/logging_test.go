package logging

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-aio/api"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, logiface.LevelWarning, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logiface.LevelInformational, lvl)

	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestNew_WritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info")
	require.NoError(t, err)

	Component(log, "reactor").Info().Int("keys", 3).Log("selector opened")
	log.Debug().Log("hidden")

	out := buf.String()
	assert.Contains(t, out, `"component":"reactor"`)
	assert.Contains(t, out, `"msg":"selector opened"`)
	assert.NotContains(t, out, "hidden")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log Logger
	assert.Nil(t, Component(log, "x"))
	log.Info().Str("k", "v").Log("dropped")
}
