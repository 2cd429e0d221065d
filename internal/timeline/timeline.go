// Package timeline builds the offline viseme timeline used in text-driven mode.
//
// A [Timeline] is an ordered, immutable sequence of [Entry] values that covers
// [0, Total) without gaps or overlaps. It is a pure function of the utterance
// text and the build options, so it can be rebuilt at any time.
package timeline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/MrWong99/visemesync/internal/classify"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

// ErrMalformed is returned by [Timeline.Validate] when a timeline is empty or
// its entries are not contiguous.
var ErrMalformed = errors.New("timeline: malformed")

// Variant selects how visemes are expanded into entries.
type Variant int

const (
	// Simple emits one Hold entry per viseme.
	Simple Variant = iota

	// ThreePhase splits every viseme into Opening, Hold and Closing entries.
	ThreePhase
)

// String returns the config name of the variant.
func (v Variant) String() string {
	switch v {
	case Simple:
		return "simple"
	case ThreePhase:
		return "three_phase"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Entry is one contiguous slice of the timeline.
type Entry struct {
	Pose     viseme.Pose
	Start    time.Duration
	Duration time.Duration
}

// End returns Start + Duration.
func (e Entry) End() time.Duration { return e.Start + e.Duration }

// Timeline is an immutable viseme schedule for one utterance.
type Timeline struct {
	entries []Entry
	total   time.Duration
}

// Build classifies text with [classify.Text] and expands the result into a
// timeline. The result always has at least one entry.
func Build(text string, opts ...Option) *Timeline {
	o := newOptions(opts)
	return FromVisemes(classify.Text(text), o)
}

// FromVisemes expands an already classified sequence. An empty sequence is
// treated as a single Silence.
func FromVisemes(vs []viseme.Viseme, o Options) *Timeline {
	if len(vs) == 0 {
		vs = []viseme.Viseme{viseme.Silence}
	}
	o = o.normalised()

	perViseme := 1
	if o.Variant == ThreePhase {
		perViseme = 3
	}
	tl := &Timeline{entries: make([]Entry, 0, len(vs)*perViseme)}

	for _, v := range vs {
		d := o.Durations.For(v)
		if o.Variant == ThreePhase {
			open, hold, closing := o.Phases.split(d)
			tl.append(viseme.Pose{Viseme: v, Phase: viseme.Opening}, open)
			tl.append(viseme.Pose{Viseme: v, Phase: viseme.Hold}, hold)
			tl.append(viseme.Pose{Viseme: v, Phase: viseme.Closing}, closing)
			continue
		}
		tl.append(viseme.Pose{Viseme: v, Phase: viseme.Hold}, d)
	}
	return tl
}

// FromEntries wraps pre-timed entries, e.g. from a synthesiser that reports
// its own phoneme timing. The entries are copied but not checked; call
// [Timeline.Validate] before use.
func FromEntries(entries []Entry) *Timeline {
	tl := &Timeline{entries: make([]Entry, len(entries))}
	copy(tl.entries, entries)
	for _, e := range entries {
		tl.total += e.Duration
	}
	return tl
}

// append adds an entry starting at the running total. Zero-length entries are
// skipped so lookups never land on an empty slice.
func (tl *Timeline) append(p viseme.Pose, d time.Duration) {
	if d <= 0 {
		return
	}
	tl.entries = append(tl.entries, Entry{Pose: p, Start: tl.total, Duration: d})
	tl.total += d
}

// Total returns the sum of all entry durations.
func (tl *Timeline) Total() time.Duration { return tl.total }

// Len returns the number of entries.
func (tl *Timeline) Len() int { return len(tl.entries) }

// Entries returns a copy of the entries in order.
func (tl *Timeline) Entries() []Entry {
	out := make([]Entry, len(tl.entries))
	copy(out, tl.entries)
	return out
}

// At returns the pose active at elapsed time t, i.e. the entry with
// Start ≤ t < Start+Duration. Outside [0, Total) it returns [viseme.Rest].
func (tl *Timeline) At(t time.Duration) viseme.Pose {
	if t < 0 || t >= tl.total || len(tl.entries) == 0 {
		return viseme.Rest
	}
	i := sort.Search(len(tl.entries), func(i int) bool {
		return tl.entries[i].End() > t
	})
	if i == len(tl.entries) {
		return viseme.Rest
	}
	return tl.entries[i].Pose
}

// Validate checks the coverage invariant: at least one entry, the first
// starting at zero, each starting where the previous ended, every duration
// positive and the durations summing to Total.
func (tl *Timeline) Validate() error {
	if tl == nil || len(tl.entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrMalformed)
	}
	var cursor time.Duration
	for i, e := range tl.entries {
		if e.Duration <= 0 {
			return fmt.Errorf("%w: entry %d has non-positive duration %v", ErrMalformed, i, e.Duration)
		}
		if e.Start != cursor {
			return fmt.Errorf("%w: entry %d starts at %v, want %v", ErrMalformed, i, e.Start, cursor)
		}
		if !e.Pose.Viseme.IsValid() {
			return fmt.Errorf("%w: entry %d has invalid viseme %d", ErrMalformed, i, e.Pose.Viseme)
		}
		cursor += e.Duration
	}
	if cursor != tl.total {
		return fmt.Errorf("%w: durations sum to %v, total is %v", ErrMalformed, cursor, tl.total)
	}
	return nil
}
