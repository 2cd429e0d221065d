// Package transition schedules cross-fades between consecutive visemes.
//
// The [Scheduler] does not render. It records when the classified viseme last
// changed and reports a blend progress that rises linearly from 0 to 1 over a
// fixed duration, so the renderer can alpha-blend instead of hard-cutting.
//
// A Scheduler is owned by a single goroutine (the animation tick) and is not
// safe for concurrent use.
package transition

import (
	"time"

	"github.com/MrWong99/visemesync/pkg/viseme"
)

// DefaultDuration is short enough to keep up with speech rate while still
// hiding the discrete pose switches.
const DefaultDuration = 60 * time.Millisecond

// State is the transition bookkeeping.
type State struct {
	Previous viseme.Viseme
	Current  viseme.Viseme

	// Start is the session time of the last change.
	Start time.Duration
}

// Sample is the scheduler output at a point in time.
type Sample struct {
	Previous viseme.Viseme
	Current  viseme.Viseme

	// Progress is in [0, 1]; 0 exactly at a change, 1 once the transition
	// duration has elapsed.
	Progress float64
}

// Scheduler tracks the current and previous viseme.
type Scheduler struct {
	duration time.Duration
	state    State
}

// New creates a Scheduler resting in Silence. A non-positive duration uses
// [DefaultDuration].
func New(d time.Duration) *Scheduler {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Scheduler{duration: d}
}

// Duration returns the fixed transition length.
func (s *Scheduler) Duration() time.Duration { return s.duration }

// State returns a copy of the bookkeeping.
func (s *Scheduler) State() State { return s.state }

// OnClassification records the latest classification. Only a viseme that
// differs from the current one starts a new transition; it reports whether it
// did.
func (s *Scheduler) OnClassification(v viseme.Viseme, now time.Duration) bool {
	if v == s.state.Current {
		return false
	}
	s.state = State{Previous: s.state.Current, Current: v, Start: now}
	return true
}

// Sample returns the blend state at now. Times before the last change clamp
// to progress 0.
func (s *Scheduler) Sample(now time.Duration) Sample {
	p := float64(now-s.state.Start) / float64(s.duration)
	switch {
	case p < 0:
		p = 0
	case p > 1:
		p = 1
	}
	return Sample{Previous: s.state.Previous, Current: s.state.Current, Progress: p}
}

// Reset returns the scheduler to a settled Silence.
func (s *Scheduler) Reset() {
	s.state = State{}
}
