package loop

import (
	"context"
	"sort"
	"time"
)

// FakeScheduler is a manual clock for deterministic timer tests.
// Callbacks run synchronously inside Advance.
type FakeScheduler struct {
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	period  time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() {
	t.stopped = true
}

// NewFakeScheduler creates a FakeScheduler at time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// AfterFunc implements Scheduler.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return s.add(d, 0, fn)
}

// Every implements Scheduler.
func (s *FakeScheduler) Every(d time.Duration, fn func()) Timer {
	return s.add(d, d, fn)
}

func (s *FakeScheduler) add(d, period time.Duration, fn func()) *fakeTimer {
	s.seq++
	t := &fakeTimer{at: s.now + d, period: period, seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Now returns the elapsed fake time.
func (s *FakeScheduler) Now() time.Duration {
	return s.now
}

// Advance moves the clock forward by d, firing every timer that becomes due
// in chronological order.
func (s *FakeScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		next := s.next(target)
		if next == nil {
			break
		}
		s.now = next.at
		if next.period > 0 {
			next.at += next.period
		} else {
			next.stopped = true
		}
		next.fn()
	}
	s.now = target
}

// Pending returns the number of timers that have not fired or been stopped.
func (s *FakeScheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (s *FakeScheduler) next(target time.Duration) *fakeTimer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.timers = live

	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].at == s.timers[j].at {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].at < s.timers[j].at
	})

	if len(s.timers) == 0 || s.timers[0].at > target {
		return nil
	}
	return s.timers[0]
}

// FakeRunner queues async work until the test releases it, which lets tests
// model a slow controller.
type FakeRunner struct {
	pending []func(ctx context.Context) func()
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// Async implements Runner.
func (r *FakeRunner) Async(work func(ctx context.Context) func()) {
	r.pending = append(r.pending, work)
}

// Pending returns the number of queued work items.
func (r *FakeRunner) Pending() int {
	return len(r.pending)
}

// Step runs the oldest queued work item and its continuation.
// Returns false if nothing was queued.
func (r *FakeRunner) Step() bool {
	if len(r.pending) == 0 {
		return false
	}
	work := r.pending[0]
	r.pending = r.pending[1:]
	if cont := work(context.Background()); cont != nil {
		cont()
	}
	return true
}

// Drain steps until no work is left, including work queued by continuations.
// Returns the number of steps taken.
func (r *FakeRunner) Drain() int {
	n := 0
	for r.Step() {
		n++
	}
	return n
}
