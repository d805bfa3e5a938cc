package heartbeat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerTicks(t *testing.T) {
	var ticks atomic.Int64
	var tm Timer
	tm.Start(5*time.Millisecond, func() { ticks.Add(1) })
	defer tm.Stop()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	require.True(t, tm.Running())
}

func TestStopIsIdempotentAndSafeBeforeStart(t *testing.T) {
	var tm Timer
	tm.Stop() // never started
	tm.Stop()

	var ticks atomic.Int64
	tm.Start(5*time.Millisecond, func() { ticks.Add(1) })
	tm.Stop()
	tm.Stop()
	require.False(t, tm.Running())

	got := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, got, ticks.Load(), "ticks after Stop")
}

func TestRestartReplacesTimer(t *testing.T) {
	var old, fresh atomic.Int64
	var tm Timer
	tm.Start(5*time.Millisecond, func() { old.Add(1) })
	tm.Start(5*time.Millisecond, func() { fresh.Add(1) })
	defer tm.Stop()

	require.Eventually(t, func() bool { return fresh.Load() >= 3 }, time.Second, time.Millisecond)

	// The first timer must be gone, not stacked under the second.
	got := old.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, got, old.Load(), "replaced timer kept ticking")
}
