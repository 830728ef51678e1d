package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTickerRuns(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	s.AddTicker("tick", 10*time.Millisecond, func() {
		count.Add(1)
	})

	require.Eventually(t, func() bool { return count.Load() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestTickerReplacedByName(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var old, replacement atomic.Int32
	s.AddTicker("job", 10*time.Millisecond, func() { old.Add(1) })
	s.AddTicker("job", 10*time.Millisecond, func() { replacement.Add(1) })

	require.Eventually(t, func() bool { return replacement.Load() >= 2 },
		time.Second, 5*time.Millisecond)
	before := old.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, old.Load(), "replaced ticker must stop firing")
}

func TestTickerPanicRecovered(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	s.AddTicker("panicky", 10*time.Millisecond, func() {
		count.Add(1)
		panic("boom")
	})

	require.Eventually(t, func() bool { return count.Load() >= 2 },
		time.Second, 5*time.Millisecond, "task keeps running after a panic")
}

func TestAddDelayRunsOnce(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	s.AddDelay("once", 10*time.Millisecond, func() { count.Add(1) })

	require.Eventually(t, func() bool { return count.Load() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestRemoveStopsTask(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	s.AddTicker("tick", 10*time.Millisecond, func() { count.Add(1) })
	require.Eventually(t, func() bool { return count.Load() >= 1 },
		time.Second, 5*time.Millisecond)

	s.Remove("tick")
	after := count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, count.Load(), after+1, "at most one in-flight tick after removal")
}

func TestStopStopsEverything(t *testing.T) {
	s := New(zap.NewNop())

	var count atomic.Int32
	s.AddTicker("tick", 10*time.Millisecond, func() { count.Add(1) })
	s.Stop()
	s.Stop() // idempotent

	time.Sleep(30 * time.Millisecond)
	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, count.Load())
}
