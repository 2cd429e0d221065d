package clock

import (
	"sync"
	"time"
)

// Manual is a deterministic [Source] for tests. Tasks run synchronously on
// the goroutine that calls [Manual.Advance].
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Every registers a task due one period from now.
func (m *Manual) Every(period time.Duration, fn func()) Handle {
	if period <= 0 {
		period = time.Millisecond
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{
		period: period,
		fn:     fn,
		due:    m.now.Add(period),
		done:   make(chan struct{}),
	}
	m.tasks = append(m.tasks, t)
	return t
}

// Pending returns the number of tasks that have not been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.isCancelled() {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, running every task that falls due on the
// way in due-time order. A task is re-armed only after its function returns.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		m.mu.Unlock()

		next.fn()

		m.mu.Lock()
		next.due = next.due.Add(next.period)
		m.mu.Unlock()
	}
}

// nextDueLocked returns the earliest live task due at or before target and
// drops cancelled tasks.
func (m *Manual) nextDueLocked(target time.Time) *manualTask {
	live := m.tasks[:0]
	var best *manualTask
	for _, t := range m.tasks {
		if t.isCancelled() {
			continue
		}
		live = append(live, t)
		if t.due.After(target) {
			continue
		}
		if best == nil || t.due.Before(best.due) {
			best = t
		}
	}
	m.tasks = live
	return best
}

var _ Source = (*Manual)(nil)

type manualTask struct {
	period time.Duration
	fn     func()
	due    time.Time

	once      sync.Once
	cancelled bool
	cmu       sync.Mutex
	done      chan struct{}
}

func (t *manualTask) Cancel() {
	t.once.Do(func() {
		t.cmu.Lock()
		t.cancelled = true
		t.cmu.Unlock()
		close(t.done)
	})
}

func (t *manualTask) Done() <-chan struct{} { return t.done }

func (t *manualTask) isCancelled() bool {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	return t.cancelled
}
