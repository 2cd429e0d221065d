package timeline

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/visemesync/pkg/viseme"
)

// checkCoverage asserts the contiguity invariant and returns the summed durations.
func checkCoverage(t *testing.T, tl *Timeline) time.Duration {
	t.Helper()
	if err := tl.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	var sum, cursor time.Duration
	for i, e := range tl.Entries() {
		if e.Start != cursor {
			t.Fatalf("entry %d starts at %v, want %v", i, e.Start, cursor)
		}
		cursor = e.End()
		sum += e.Duration
	}
	if sum != tl.Total() {
		t.Fatalf("sum(durations) = %v, Total() = %v", sum, tl.Total())
	}
	return sum
}

func TestBuild_Coverage(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"hi",
		"hello world",
		"The quick brown fox jumps over the lazy dog.",
		"   spaced    out   ",
		"!!!",
		"",
		"naïve café 42",
	}
	for _, in := range inputs {
		for _, variant := range []Variant{Simple, ThreePhase} {
			t.Run(variant.String()+"/"+in, func(t *testing.T) {
				tl := Build(in, WithVariant(variant))
				if tl.Len() == 0 {
					t.Fatal("timeline is empty")
				}
				checkCoverage(t, tl)
				if got := tl.At(tl.Total()); got != viseme.Rest {
					t.Errorf("At(Total) = %s, want %s", got.Key(), viseme.Rest.Key())
				}
			})
		}
	}
}

func TestBuild_SingleWordHasNoTrailingSilence(t *testing.T) {
	t.Parallel()

	tl := Build("hi")
	entries := tl.Entries()
	want := []viseme.Viseme{viseme.WideOpen, viseme.WideSmile}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Pose.Viseme != want[i] || e.Pose.Phase != viseme.Hold {
			t.Errorf("entry %d = %s, want %s/hold", i, e.Pose.Key(), want[i])
		}
	}
	d := DefaultDurations()
	if tl.Total() != d.For(viseme.WideOpen)+d.For(viseme.WideSmile) {
		t.Errorf("Total = %v", tl.Total())
	}
}

func TestBuild_ThreePhaseTriplesEntries(t *testing.T) {
	t.Parallel()

	simple := Build("hello there")
	three := Build("hello there", WithVariant(ThreePhase))
	if three.Len() != 3*simple.Len() {
		t.Fatalf("three-phase len = %d, want %d", three.Len(), 3*simple.Len())
	}
	if three.Total() != simple.Total() {
		t.Errorf("three-phase total = %v, simple total = %v", three.Total(), simple.Total())
	}
	phases := []viseme.Phase{viseme.Opening, viseme.Hold, viseme.Closing}
	for i, e := range three.Entries() {
		if e.Pose.Phase != phases[i%3] {
			t.Errorf("entry %d phase = %s, want %s", i, e.Pose.Phase, phases[i%3])
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	a := Build("restartable utterance", WithVariant(ThreePhase)).Entries()
	b := Build("restartable utterance", WithVariant(ThreePhase)).Entries()
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestAt(t *testing.T) {
	t.Parallel()

	d := DefaultDurations()
	tl := Build("hi mom")
	wideOpenEnd := d.For(viseme.WideOpen)

	tests := []struct {
		name string
		at   time.Duration
		want viseme.Viseme
	}{
		{"negative clamps to rest", -time.Millisecond, viseme.Silence},
		{"start", 0, viseme.WideOpen},
		{"last instant of first entry", wideOpenEnd - time.Nanosecond, viseme.WideOpen},
		{"second entry start is inclusive", wideOpenEnd, viseme.WideSmile},
		{"inter-word silence", wideOpenEnd + d.For(viseme.WideSmile), viseme.Silence},
		{"after end", tl.Total() + time.Second, viseme.Silence},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tl.At(tc.at); got.Viseme != tc.want {
				t.Errorf("At(%v) = %s, want %s", tc.at, got.Viseme, tc.want)
			}
		})
	}
}

func TestAt_MatchesLinearScan(t *testing.T) {
	t.Parallel()

	tl := Build("binary search agrees with a linear scan", WithVariant(ThreePhase))
	entries := tl.Entries()
	for at := time.Duration(0); at < tl.Total(); at += 7 * time.Millisecond {
		var want viseme.Pose
		for _, e := range entries {
			if e.Start <= at && at < e.End() {
				want = e.Pose
				break
			}
		}
		if got := tl.At(at); got != want {
			t.Fatalf("At(%v) = %s, linear scan = %s", at, got.Key(), want.Key())
		}
	}
}

func TestWithDurations_NonPositiveKeepsDefault(t *testing.T) {
	t.Parallel()

	var custom Durations
	custom[viseme.WideOpen] = 500 * time.Millisecond
	tl := Build("a", WithDurations(custom))
	if tl.Total() != 500*time.Millisecond {
		t.Errorf("Total = %v, want 500ms", tl.Total())
	}
	tl = Build("i", WithDurations(custom))
	if tl.Total() != DefaultDurations().For(viseme.WideSmile) {
		t.Errorf("Total = %v, want default wide smile duration", tl.Total())
	}
}

func TestPhases_SplitIsExact(t *testing.T) {
	t.Parallel()

	p := Phases{Opening: 0.3, Closing: 0.3}
	for _, d := range []time.Duration{1, 7, 99 * time.Millisecond, 133 * time.Millisecond} {
		o, h, c := p.split(d)
		if o+h+c != d {
			t.Errorf("split(%v) = %v+%v+%v != %v", d, o, h, c, d)
		}
	}
	if err := (Phases{Opening: 0.5, Closing: 0.5}).Validate(); err == nil {
		t.Error("Validate accepted a split without hold")
	}
	if err := (Phases{Opening: -0.1}).Validate(); err == nil {
		t.Error("Validate accepted a negative fraction")
	}
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"gap", []Entry{
			{Pose: viseme.Rest, Start: 0, Duration: 10 * time.Millisecond},
			{Pose: viseme.Rest, Start: 20 * time.Millisecond, Duration: 10 * time.Millisecond},
		}},
		{"overlap", []Entry{
			{Pose: viseme.Rest, Start: 0, Duration: 10 * time.Millisecond},
			{Pose: viseme.Rest, Start: 5 * time.Millisecond, Duration: 10 * time.Millisecond},
		}},
		{"zero duration", []Entry{{Pose: viseme.Rest, Start: 0, Duration: 0}}},
		{"invalid viseme", []Entry{{Pose: viseme.Pose{Viseme: 99}, Start: 0, Duration: time.Millisecond}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := FromEntries(tc.entries).Validate()
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Validate() = %v, want ErrMalformed", err)
			}
		})
	}
}
