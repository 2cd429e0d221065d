// Package clock provides time and cancellable periodic tasks for the
// animation loop.
//
// A periodic task runs its function on one goroutine and re-arms its timer
// only after the function has returned, so two ticks of the same task never
// overlap. [Task.Cancel] invalidates the pending timer immediately: once it
// returns, no further invocation of the function will start.
//
// [Manual] is a deterministic implementation for tests; time advances only
// when [Manual.Advance] is called and due tasks run synchronously.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler starts periodic tasks.
type Scheduler interface {
	// Every runs fn every period until the returned handle is cancelled.
	// The first run happens one period after the call.
	Every(period time.Duration, fn func()) Handle
}

// Handle controls a running periodic task.
type Handle interface {
	// Cancel stops the task. It does not wait for an in-flight run to
	// finish and may be called from inside the task function. Calling Cancel
	// more than once is safe.
	Cancel()

	// Done is closed once the task has stopped and no run is in flight.
	Done() <-chan struct{}
}

// Source combines [Clock] and [Scheduler].
type Source interface {
	Clock
	Scheduler
}

// Real is the wall-clock [Source].
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Every starts a goroutine-backed [Task].
func (Real) Every(period time.Duration, fn func()) Handle {
	return Every(period, fn)
}

var _ Source = Real{}

// Task is a periodic task backed by a single goroutine and a timer.
type Task struct {
	period time.Duration
	fn     func()

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Every starts fn on its own goroutine, running it every period. A
// non-positive period is treated as one millisecond.
func Every(period time.Duration, fn func()) *Task {
	if period <= 0 {
		period = time.Millisecond
	}
	t := &Task{
		period: period,
		fn:     fn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.loop()
	return t
}

// Cancel implements [Handle].
func (t *Task) Cancel() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done implements [Handle].
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) loop() {
	defer close(t.done)

	timer := time.NewTimer(t.period)
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-timer.C:
		}

		// A cancel racing with the timer wins.
		select {
		case <-t.stop:
			return
		default:
		}

		t.fn()
		timer.Reset(t.period)
	}
}
