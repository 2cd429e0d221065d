package timeline

import (
	"fmt"
	"time"

	"github.com/MrWong99/visemesync/pkg/viseme"
)

// Durations holds the articulation length of each viseme, indexed by viseme.
type Durations [viseme.ExtendedCount]time.Duration

// DefaultDurations reflects typical articulation lengths: held open vowels
// are longest, stop consonants shortest.
func DefaultDurations() Durations {
	return Durations{
		viseme.Silence:       80 * time.Millisecond,
		viseme.SmallOpen:     90 * time.Millisecond,
		viseme.WideOpen:      140 * time.Millisecond,
		viseme.PressedLips:   70 * time.Millisecond,
		viseme.Rounded:       130 * time.Millisecond,
		viseme.WideSmile:     110 * time.Millisecond,
		viseme.TeethOnLip:    85 * time.Millisecond,
		viseme.TongueVisible: 75 * time.Millisecond,
		viseme.Pucker:        120 * time.Millisecond,
	}
}

// For returns the duration of v. Unknown visemes use the Silence duration.
func (d Durations) For(v viseme.Viseme) time.Duration {
	if !v.IsValid() {
		return d[viseme.Silence]
	}
	return d[v]
}

// Phases holds the fractions of a viseme's duration spent opening and
// closing in the [ThreePhase] variant. Hold receives the remainder.
type Phases struct {
	Opening float64
	Closing float64
}

// DefaultPhases returns a 25/50/25 split.
func DefaultPhases() Phases {
	return Phases{Opening: 0.25, Closing: 0.25}
}

// Validate reports whether the fractions leave a positive hold phase.
func (p Phases) Validate() error {
	if p.Opening < 0 || p.Closing < 0 {
		return fmt.Errorf("timeline: phase fractions must not be negative (opening %.2f, closing %.2f)", p.Opening, p.Closing)
	}
	if p.Opening+p.Closing >= 1 {
		return fmt.Errorf("timeline: opening %.2f + closing %.2f must be below 1", p.Opening, p.Closing)
	}
	return nil
}

// split divides d into opening, hold and closing so that the three sum to d
// exactly.
func (p Phases) split(d time.Duration) (open, hold, closing time.Duration) {
	open = time.Duration(float64(d) * p.Opening)
	closing = time.Duration(float64(d) * p.Closing)
	hold = d - open - closing
	return open, hold, closing
}

// Options configure [Build].
type Options struct {
	Variant   Variant
	Durations Durations
	Phases    Phases
}

// DefaultOptions returns the Simple variant with default durations.
func DefaultOptions() Options {
	return Options{Variant: Simple, Durations: DefaultDurations(), Phases: DefaultPhases()}
}

// normalised replaces non-positive durations and invalid phase fractions with
// defaults so that every built timeline satisfies the coverage invariant.
func (o Options) normalised() Options {
	def := DefaultDurations()
	for i, d := range o.Durations {
		if d <= 0 {
			o.Durations[i] = def[i]
		}
	}
	if o.Phases.Validate() != nil {
		o.Phases = DefaultPhases()
	}
	return o
}

// Option is a functional option for [Build].
type Option func(*Options)

// WithVariant selects the expansion variant.
func WithVariant(v Variant) Option {
	return func(o *Options) { o.Variant = v }
}

// WithDurations overrides the per-viseme duration table. Non-positive entries
// keep their default.
func WithDurations(d Durations) Option {
	return func(o *Options) { o.Durations = d }
}

// WithPhases overrides the three-phase split. Invalid fractions are ignored.
func WithPhases(p Phases) Option {
	return func(o *Options) { o.Phases = p }
}

// WithOptions replaces all options at once.
func WithOptions(opts Options) Option {
	return func(o *Options) { *o = opts }
}

func newOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
