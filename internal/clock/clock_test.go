package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery_RunsAndCancels(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	task := Every(2*time.Millisecond, func() { n.Add(1) })

	deadline := time.After(2 * time.Second)
	for n.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("task ran %d times before deadline", n.Load())
		case <-time.After(time.Millisecond):
		}
	}

	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop after Cancel")
	}

	after := n.Load()
	time.Sleep(10 * time.Millisecond)
	if got := n.Load(); got != after {
		t.Errorf("task ran %d more times after Done", got-after)
	}
}

func TestEvery_NoOverlap(t *testing.T) {
	t.Parallel()

	var running, overlaps, runs atomic.Int32
	task := Every(time.Millisecond, func() {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(3 * time.Millisecond)
		running.Add(-1)
		runs.Add(1)
	})

	time.Sleep(30 * time.Millisecond)
	task.Cancel()
	<-task.Done()

	if overlaps.Load() != 0 {
		t.Errorf("observed %d overlapping runs", overlaps.Load())
	}
	if runs.Load() == 0 {
		t.Error("task never ran")
	}
}

func TestEvery_CancelFromInsideTask(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	var task *Task
	ready := make(chan struct{})
	task = Every(time.Millisecond, func() {
		<-ready
		n.Add(1)
		task.Cancel()
	})
	close(ready)

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("self-cancel deadlocked")
	}
	if got := n.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestTask_CancelIdempotent(t *testing.T) {
	t.Parallel()

	task := Every(time.Hour, func() {})
	task.Cancel()
	task.Cancel()
	<-task.Done()
}

func TestManual_AdvanceRunsDueTasks(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	m := NewManual(start)

	var times []time.Duration
	h := m.Every(20*time.Millisecond, func() {
		times = append(times, m.Now().Sub(start))
	})

	m.Advance(19 * time.Millisecond)
	if len(times) != 0 {
		t.Fatalf("ran early at %v", times)
	}
	m.Advance(45 * time.Millisecond)
	want := []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond}
	if len(times) != len(want) {
		t.Fatalf("runs at %v, want %v", times, want)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("run %d at %v, want %v", i, times[i], want[i])
		}
	}
	if got := m.Now().Sub(start); got != 64*time.Millisecond {
		t.Errorf("Now = %v, want 64ms", got)
	}

	h.Cancel()
	m.Advance(time.Second)
	if len(times) != len(want) {
		t.Errorf("ran after cancel: %v", times)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", m.Pending())
	}
}

func TestManual_CancelInsideTaskStopsFurtherRuns(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	runs := 0
	var h Handle
	h = m.Every(10*time.Millisecond, func() {
		runs++
		h.Cancel()
	})
	m.Advance(100 * time.Millisecond)
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after Cancel")
	}
}

func TestManual_TaskScheduledDuringAdvance(t *testing.T) {
	t.Parallel()

	m := NewManual(time.Unix(0, 0))
	var inner int
	var outer Handle
	outer = m.Every(10*time.Millisecond, func() {
		outer.Cancel()
		m.Every(10*time.Millisecond, func() { inner++ })
	})
	m.Advance(35 * time.Millisecond)
	// Outer at 10ms, inner at 20ms and 30ms.
	if inner != 2 {
		t.Errorf("inner runs = %d, want 2", inner)
	}
}
