package combat_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

func TestTimer_CountsDownAndExpiresOnce(t *testing.T) {
	sched := combat.NewManualScheduler()
	timer := combat.NewTimer(sched, time.Second)

	var ticks []int
	var expired int
	timer.Start(3, func(rem int) { ticks = append(ticks, rem) }, func() { expired++ })

	sched.Advance(2)
	assert.Equal(t, []int{2, 1}, ticks)
	assert.Equal(t, 0, expired)
	assert.True(t, timer.Running())

	sched.Advance(5)
	assert.Equal(t, []int{2, 1, 0}, ticks)
	assert.Equal(t, 1, expired)
	assert.False(t, timer.Running())
	assert.Equal(t, 0, sched.Active(), "expired timer must unschedule itself")
}

func TestTimer_StartWhileRunning_ReplacesRun(t *testing.T) {
	sched := combat.NewManualScheduler()
	timer := combat.NewTimer(sched, time.Second)

	var first, second int
	timer.Start(5, func(int) { first++ }, nil)
	sched.Advance(1)
	timer.Start(5, func(int) { second++ }, nil)
	sched.Advance(2)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, sched.Active())
}

func TestTimer_PausePreservesRemaining(t *testing.T) {
	sched := combat.NewManualScheduler()
	timer := combat.NewTimer(sched, time.Second)

	var expired int
	timer.Start(4, nil, func() { expired++ })
	sched.Advance(1)
	rem := timer.Pause()
	require.Equal(t, 3, rem)
	sched.Advance(10)
	assert.Equal(t, 3, timer.Remaining())
	assert.Equal(t, 0, expired)

	timer.Start(rem, nil, func() { expired++ })
	sched.Advance(3)
	assert.Equal(t, 1, expired)
}

func TestTimer_ResetStopsAndSetsRemaining(t *testing.T) {
	sched := combat.NewManualScheduler()
	timer := combat.NewTimer(sched, time.Second)

	var ticks int
	timer.Start(4, func(int) { ticks++ }, nil)
	sched.Advance(2)
	timer.Reset(9)
	sched.Advance(3)

	assert.Equal(t, 2, ticks)
	assert.Equal(t, 9, timer.Remaining())
	assert.False(t, timer.Running())
}

func TestTimer_NonPositiveDurationExpiresImmediately(t *testing.T) {
	timer := combat.NewTimer(combat.NewManualScheduler(), time.Second)
	var expired int
	timer.Start(0, nil, func() { expired++ })
	assert.Equal(t, 1, expired)
	assert.False(t, timer.Running())
}

func TestTimer_StopIdempotent(t *testing.T) {
	timer := combat.NewTimer(combat.NewManualScheduler(), time.Second)
	timer.Start(3, nil, nil)
	// Multiple Stop() calls must not panic
	timer.Stop()
	timer.Stop()
	timer.Stop()
	assert.False(t, timer.Running())
}

func TestTickerScheduler_FiresAndExpires(t *testing.T) {
	var ticks atomic.Int32
	expired := make(chan struct{})
	timer := combat.NewTimer(combat.TickerScheduler{}, 10*time.Millisecond)
	timer.Start(3, func(int) { ticks.Add(1) }, func() { close(expired) })

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for expiry")
	}
	assert.Equal(t, int32(3), ticks.Load())
}

func TestTickerScheduler_Stop_PreventsCallback(t *testing.T) {
	var called atomic.Int32
	timer := combat.NewTimer(combat.TickerScheduler{}, 30*time.Millisecond)
	timer.Start(1, nil, func() { called.Add(1) })
	timer.Stop()
	time.Sleep(80 * time.Millisecond)
	if called.Load() != 0 {
		t.Fatalf("expected callback not called, got %d", called.Load())
	}
}

func TestTickerScheduler_DispatchReceivesTicks(t *testing.T) {
	queue := make(chan func(), 4)
	sched := combat.TickerScheduler{Dispatch: func(fn func()) { queue <- fn }}
	var ran atomic.Int32
	cancel := sched.Every(10*time.Millisecond, func() { ran.Add(1) })
	defer cancel()

	select {
	case fn := <-queue:
		assert.Equal(t, int32(0), ran.Load(), "dispatch must not run fn itself")
		fn()
		assert.Equal(t, int32(1), ran.Load())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched tick")
	}
}
