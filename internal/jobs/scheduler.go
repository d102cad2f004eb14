package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"xnom/internal/logging"
	"xnom/internal/metrics"
)

// Scheduler runs named jobs on a fixed interval. A run that is still going
// when the next one falls due causes that next run to be skipped.
type Scheduler struct {
	clock Clock
}

func NewScheduler(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{clock: clock}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock { return s.clock }

type options struct {
	initial    bool
	initialDly time.Duration
}

// Option tweaks a scheduled job.
type Option func(*options)

// WithInitialRun runs the job once after delay, before the first interval.
func WithInitialRun(delay time.Duration) Option {
	return func(o *options) {
		o.initial = true
		o.initialDly = delay
	}
}

// Ticket is a handle on a scheduled job.
type Ticket struct {
	name     string
	interval time.Duration
	fn       func(context.Context)
	ctx      context.Context
	clock    Clock

	mu       sync.Mutex
	timers   []Timer
	canceled bool
	stopped  chan struct{}
	running  atomic.Bool
	wg       sync.WaitGroup
}

// Every schedules fn every interval until the ticket is cancelled or ctx
// is done. fn receives ctx.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context), opts ...Option) *Ticket {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := &Ticket{name: name, interval: interval, fn: fn, ctx: ctx, clock: s.clock, stopped: make(chan struct{})}
	if o.initial {
		t.arm(o.initialDly, false)
	}
	t.arm(interval, true)
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				t.Cancel()
			case <-t.stopped:
			}
		}()
	}
	return t
}

func (t *Ticket) arm(d time.Duration, repeat bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return
	}
	var timer Timer
	timer = t.clock.AfterFunc(d, func() {
		t.forget(timer)
		if repeat {
			t.arm(t.interval, true)
		}
		t.fire()
	})
	t.timers = append(t.timers, timer)
}

func (t *Ticket) forget(timer Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, x := range t.timers {
		if x == timer {
			t.timers = append(t.timers[:i], t.timers[i+1:]...)
			return
		}
	}
}

func (t *Ticket) fire() {
	t.mu.Lock()
	if t.canceled {
		t.mu.Unlock()
		return
	}
	if !t.running.CompareAndSwap(false, true) {
		t.mu.Unlock()
		metrics.JobOverlaps.WithLabelValues(t.name).Inc()
		logging.Warn("job_overlap_skipped", map[string]any{"job": t.name})
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("job_panic", map[string]any{"job": t.name, "panic": r})
		}
		t.running.Store(false)
		t.wg.Done()
	}()
	t.fn(t.ctx)
}

// Cancel stops future runs. An in-flight run is not interrupted.
func (t *Ticket) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return
	}
	t.canceled = true
	close(t.stopped)
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = nil
}

// Active reports whether the ticket still has future runs.
func (t *Ticket) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.canceled
}

// Running reports whether a run is in flight.
func (t *Ticket) Running() bool { return t.running.Load() }

// Wait blocks until any in-flight run returns.
func (t *Ticket) Wait() { t.wg.Wait() }
