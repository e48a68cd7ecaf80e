package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrigger_Coalesces(t *testing.T) {
	var calls atomic.Int32
	d := New(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 },
		500*time.Millisecond, 5*time.Millisecond)

	// No stray second invocation.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFlush_RunsPendingImmediately(t *testing.T) {
	var calls atomic.Int32
	d := New(time.Hour, func() { calls.Add(1) })

	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), calls.Load())

	// Flush without a pending trigger is a no-op.
	d.Flush()
	assert.Equal(t, int32(1), calls.Load())
}

func TestStop_CancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := New(10*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	// Triggers after Stop are ignored.
	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTrigger_StaleTimerCallbackIsSkipped(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	// An expired timer whose callback is delayed past a re-trigger
	// carries an old generation and must not produce an extra call.
	d.Trigger()
	d.mu.Lock()
	staleGen := d.gen
	d.mu.Unlock()
	d.Trigger()
	d.fire(staleGen)
	assert.Equal(t, int32(0), calls.Load())

	assert.Eventually(t, func() bool { return calls.Load() == 1 },
		500*time.Millisecond, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	d.Stop()
}

func TestTrigger_FiresLatestState(t *testing.T) {
	var latest atomic.Int32
	var observed atomic.Int32
	d := New(20*time.Millisecond, func() { observed.Store(latest.Load()) })

	for i := int32(1); i <= 5; i++ {
		latest.Store(i)
		d.Trigger()
	}

	assert.Eventually(t, func() bool { return observed.Load() == 5 },
		500*time.Millisecond, 5*time.Millisecond)
}
