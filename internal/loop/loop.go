// Package loop provides the single event loop that serializes every state
// transition of the switch: input edges, timer firings and the continuations
// of asynchronous network work all run on one goroutine.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when work is submitted to a stopped loop.
var ErrClosed = errors.New("event loop closed")

// DefaultQueueSize is the work queue length used by New when size <= 0.
const DefaultQueueSize = 64

// Work is a unit of work executed on the loop goroutine.
type Work func()

// Timer is a schedule handle. Stop must be called from the loop goroutine.
// A stopped timer never runs its callback, even if it already fired and the
// callback is waiting in the queue.
type Timer interface {
	Stop()
}

// Scheduler creates schedule handles whose callbacks run on the loop.
type Scheduler interface {
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// Every runs fn every d until stopped.
	Every(d time.Duration, fn func()) Timer
}

// Runner moves blocking work off the loop. The continuation returned by work,
// if not nil, is executed back on the loop.
type Runner interface {
	Async(work func(ctx context.Context) func())
}

// Loop executes queued work one item at a time.
type Loop struct {
	queue chan Work
	ctx   context.Context

	// closing is closed by Close, done is closed when Run returns
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	async sync.WaitGroup
}

// New creates a loop with the given queue size.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		queue:   make(chan Work, queueSize),
		ctx:     context.Background(),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run processes work until the context is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	l.ctx = ctx
	defer l.doneOnce.Do(func() { close(l.done) })

	log.Debug().Int("queue_size", cap(l.queue)).Msg("Event loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.closing:
			return
		case w := <-l.queue:
			l.exec(w)
		}
	}
}

func (l *Loop) exec(w Work) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Event loop work panicked")
		}
	}()
	w()
}

// Do queues work, blocking while the queue is full.
// Returns false if the loop is closing or no longer running.
func (l *Loop) Do(w Work) bool {
	select {
	case <-l.closing:
		return false
	case <-l.done:
		return false
	case l.queue <- w:
		return true
	}
}

// Call runs fn on the loop and waits for it to complete.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	queued := l.Do(func() {
		defer close(finished)
		fn()
	})
	if !queued {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Async implements Runner.
func (l *Loop) Async(work func(ctx context.Context) func()) {
	ctx := l.ctx
	l.async.Add(1)
	go func() {
		defer l.async.Done()
		var cont func()
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Async work panicked")
				}
			}()
			cont = work(ctx)
		}()
		if cont != nil {
			l.Do(cont)
		}
	}()
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Do(func() {
			if t.stopped {
				return
			}
			t.stopped = true
			fn()
		})
	})
	return t
}

// Every implements Scheduler.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	t := &timer{quit: make(chan struct{})}
	ticker := time.NewTicker(d)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-l.done:
				return
			case <-ticker.C:
				queued := l.Do(func() {
					if !t.stopped {
						fn()
					}
				})
				if !queued {
					return
				}
			}
		}
	}()

	return t
}

// Close stops the loop and waits for in-flight async work until ctx expires.
func (l *Loop) Close(ctx context.Context) {
	l.closeOnce.Do(func() {
		close(l.closing)
	})

	finished := make(chan struct{})
	go func() {
		l.async.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Debug().Msg("Event loop stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event loop shutdown timed out, in-flight requests abandoned")
	}
}

// timer is shared by AfterFunc and Every. All fields except quit are only
// touched on the loop goroutine.
type timer struct {
	timer   *time.Timer
	quit    chan struct{}
	stopped bool
}

func (t *timer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.quit != nil {
		close(t.quit)
	}
}
