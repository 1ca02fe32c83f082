package combat

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once per interval until the returned cancel func is called.
//
// Implementations MUST make cancel idempotent and safe to call from inside fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler is the production Scheduler backed by time.Ticker.
type TickerScheduler struct {
	// Dispatch, when non-nil, receives each due tick and is responsible for
	// running fn, e.g. by queueing it on an event loop. When nil, fn runs on
	// the ticker goroutine.
	Dispatch func(fn func())
}

// Every starts a ticker goroutine.
//
// Precondition: interval > 0; fn must not be nil.
// Postcondition: fn is scheduled once per interval until cancel is called.
func (s TickerScheduler) Every(interval time.Duration, fn func()) func() {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if s.Dispatch != nil {
					s.Dispatch(fn)
				} else {
					fn()
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}

// ManualScheduler is a Scheduler advanced explicitly by Advance. It lets tests
// simulate a countdown tick by tick without waiting on the wall clock.
// It is safe for concurrent use.
type ManualScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[int]func()
}

// NewManualScheduler returns an empty ManualScheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{jobs: make(map[int]func())}
}

// Every registers fn; the interval is ignored.
func (m *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.jobs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.jobs, id)
	}
}

// Advance fires every live job n times, one interval at a time, in
// registration order. Jobs cancelled mid-advance do not fire again.
func (m *ManualScheduler) Advance(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		ids := make([]int, 0, len(m.jobs))
		for id := range m.jobs {
			ids = append(ids, id)
		}
		m.mu.Unlock()
		sort.Ints(ids)

		for _, id := range ids {
			m.mu.Lock()
			fn, ok := m.jobs[id]
			m.mu.Unlock()
			if ok {
				fn()
			}
		}
	}
}

// Active returns the number of registered jobs.
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Timer is the fight countdown. It decrements a remaining-seconds counter once
// per interval while running and reports expiry exactly once, then stops itself.
//
// Timer only schedules; the Session owns the authoritative time remaining and
// drives Start, Pause and Stop. It is safe for concurrent use.
type Timer struct {
	sched    Scheduler
	interval time.Duration

	mu        sync.Mutex
	run       uint64
	cancel    func()
	running   bool
	remaining int
}

// NewTimer creates a stopped Timer.
//
// Precondition: sched must be non-nil; interval > 0.
func NewTimer(sched Scheduler, interval time.Duration) *Timer {
	return &Timer{sched: sched, interval: interval}
}

// Start begins a countdown of seconds ticks. A run already in progress is
// cancelled first, so there is never more than one live ticker.
// onTick receives the remaining count after every tick; onExpire is called
// once, right after the tick that reaches zero. Either callback may be nil.
//
// Precondition: seconds > 0. A non-positive value expires immediately.
// Postcondition: Running() is true unless the countdown expired immediately.
func (t *Timer) Start(seconds int, onTick func(remaining int), onExpire func()) {
	t.mu.Lock()
	t.stopLocked()
	t.run++
	run := t.run
	t.remaining = seconds
	if seconds <= 0 {
		t.remaining = 0
		t.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
		return
	}
	t.running = true
	t.cancel = t.sched.Every(t.interval, func() {
		t.tick(run, onTick, onExpire)
	})
	t.mu.Unlock()
}

func (t *Timer) tick(run uint64, onTick func(int), onExpire func()) {
	t.mu.Lock()
	if run != t.run || !t.running {
		t.mu.Unlock()
		return
	}
	t.remaining--
	rem := t.remaining
	expired := rem <= 0
	if expired {
		t.stopLocked()
	}
	t.mu.Unlock()

	if onTick != nil {
		onTick(rem)
	}
	if expired && onExpire != nil {
		onExpire()
	}
}

// Pause stops ticking and returns the preserved remaining count.
// Resume by calling Start with the returned value.
func (t *Timer) Pause() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	return t.remaining
}

// Reset stops any run and sets the remaining count without starting.
func (t *Timer) Reset(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.run++
	t.remaining = seconds
}

// Stop cancels the scheduled tick. Safe to call multiple times.
//
// Postcondition: No callback of the current run is invoked after Stop returns,
// except one whose tick had already started.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.running = false
}

// Running reports whether a countdown is in progress.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the timer's own remaining count.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}
