// Package classify maps audio features or utterance text onto visemes.
//
// Two rules exist, one per driving mode:
//
//   - [Audio] evaluates prioritised amplitude/frequency thresholds and returns
//     a symbol from the base vocabulary.
//   - [Text] scans an utterance character by character and returns a sequence
//     from the extended vocabulary.
//
// Both are pure, never panic, and fall through to a documented default for
// input they do not recognise.
package classify

import (
	"math"

	"github.com/MrWong99/visemesync/internal/feature"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

// Thresholds parameterise the audio rule. The bands overlap on purpose; rule
// order resolves the overlap.
type Thresholds struct {
	// Silence: amplitude below this is always silence.
	Silence float64

	// WideOpen: amplitude above this opens the jaw.
	WideOpen float64

	// WideSmileHz: dominant frequency above this spreads the lips.
	WideSmileHz float64

	// SmallOpenHz: dominant frequency above this (and up to WideSmileHz) is a
	// general vowel.
	SmallOpenHz float64

	// RoundedHz: dominant frequency above this (and up to SmallOpenHz) is a
	// back vowel when loud enough.
	RoundedHz float64

	// RoundedAmplitude is the minimum amplitude for a back vowel.
	RoundedAmplitude float64

	// PressedMin and PressedMax bound (exclusively) the amplitude band treated
	// as a nasal or stop consonant.
	PressedMin float64
	PressedMax float64
}

// DefaultThresholds returns the reference threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Silence:          0.05,
		WideOpen:         0.6,
		WideSmileHz:      2000,
		SmallOpenHz:      800,
		RoundedHz:        200,
		RoundedAmplitude: 0.3,
		PressedMin:       0.15,
		PressedMax:       0.35,
	}
}

// Audio classifies one feature sample. The first matching rule wins:
//
//  1. not speaking, or amplitude < Silence   → Silence
//  2. amplitude > WideOpen                   → WideOpen
//  3. frequency > WideSmileHz                → WideSmile
//  4. SmallOpenHz < frequency ≤ WideSmileHz  → SmallOpen
//  5. RoundedHz < frequency ≤ SmallOpenHz and amplitude > RoundedAmplitude → Rounded
//  6. PressedMin < amplitude < PressedMax    → PressedLips
//  7. otherwise                              → SmallOpen
//
// The result is always one of the six base symbols.
func Audio(s feature.Sample, t Thresholds) viseme.Viseme {
	amp, hz := s.Amplitude, s.DominantFrequencyHz
	if math.IsNaN(amp) {
		amp = 0
	}
	if math.IsNaN(hz) || hz < 0 {
		hz = 0
	}

	switch {
	case !s.IsSpeaking || amp < t.Silence:
		return viseme.Silence
	case amp > t.WideOpen:
		return viseme.WideOpen
	case hz > t.WideSmileHz:
		return viseme.WideSmile
	case hz > t.SmallOpenHz:
		return viseme.SmallOpen
	case hz > t.RoundedHz && amp > t.RoundedAmplitude:
		return viseme.Rounded
	case amp > t.PressedMin && amp < t.PressedMax:
		return viseme.PressedLips
	default:
		return viseme.SmallOpen
	}
}
