package markup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReady(t *testing.T) {
	surface := newFakeSurface()
	require.NoError(t, AwaitReady(context.Background(), surface))
}

func TestAwaitReady_BecomesReady(t *testing.T) {
	surface := newFakeSurface()
	surface.ready = false

	go func() {
		time.Sleep(150 * time.Millisecond)
		surface.mu.Lock()
		surface.ready = true
		surface.mu.Unlock()
	}()

	require.NoError(t, AwaitReady(context.Background(), surface))
}

func TestAwaitReady_ContextCancel(t *testing.T) {
	surface := newFakeSurface()
	surface.ready = false

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := AwaitReady(ctx, surface)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDebounce_CollapsesBursts(t *testing.T) {
	var calls atomic.Int32
	trigger := debounce(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		trigger()
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, 10*time.Millisecond)

	trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 2 },
		time.Second, 10*time.Millisecond)
}
