package watcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []time.Time
	)
	d := NewDebouncer(300*time.Millisecond, func() {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
	})
	defer d.Stop()

	d.Trigger()
	time.Sleep(40 * time.Millisecond)
	d.Trigger()
	time.Sleep(40 * time.Millisecond)
	last := time.Now()
	d.Trigger()

	time.Sleep(700 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1, "three triggers within 100ms produce one call")
	assert.GreaterOrEqual(t, calls[0].Sub(last), 290*time.Millisecond)
}

func TestDebouncerSeparateWindows(t *testing.T) {
	var n atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() { n.Add(1) })
	defer d.Stop()

	d.Trigger()
	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.False(t, d.Pending())

	d.Trigger()
	assert.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestDebouncerStop(t *testing.T) {
	var n atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() { n.Add(1) })

	d.Trigger()
	assert.True(t, d.Pending())
	d.Stop()
	d.Trigger()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestDebouncerDefaultDelay(t *testing.T) {
	d := NewDebouncer(0, nil)
	assert.Equal(t, DefaultDebounce, d.Delay())
}
