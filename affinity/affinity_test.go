package affinity

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPin_WrapsAroundAllowedCPUs(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		t.Skip("pinning not supported")
	}
	for _, n := range []int{0, 1, runtime.NumCPU() + 1, -3} {
		errc := make(chan error, 1)
		go func() {
			// the goroutine exits with the thread locked, discarding it
			errc <- Pin(n)
		}()
		require.NoError(t, <-errc, "n=%d", n)
	}
}

func TestPin_Unsupported(t *testing.T) {
	if runtime.GOOS == "linux" || runtime.GOOS == "windows" {
		t.Skip("pinning supported")
	}
	assert.Error(t, Pin(0))
}
