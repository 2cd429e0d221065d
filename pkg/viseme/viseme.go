// Package viseme defines the closed vocabulary of mouth poses shared between
// the synchronisation engine and avatar renderers.
//
// Two vocabularies exist:
//
//   - The base set (6 symbols) produced by the audio-driven classifier.
//   - The extended set (9 symbols) produced by the text-driven classifier,
//     which adds finer distinctions for labiodentals, dental fricatives and
//     tight lip rounding.
//
// [Collapse] maps every extended symbol onto the base set so that renderers
// that only ship the six base poses can still display text-driven output.
//
// The vocabulary is versioned by [Version]. Adding a symbol requires updating
// every classifier and the renderer contract, and must bump [Version].
//
// This package lives under pkg/ because renderers are expected to import it.
package viseme

import "fmt"

// Version identifies the revision of the viseme vocabulary.
const Version = 1

// Viseme is a discrete mouth pose. Exactly one Viseme is active at any instant.
type Viseme uint8

const (
	// Silence is the closed, resting mouth.
	Silence Viseme = iota

	// SmallOpen is a slightly open mouth used for general vowels and as the
	// default when nothing more specific applies.
	SmallOpen

	// WideOpen is an open jaw for loud or open vowels ("ah").
	WideOpen

	// PressedLips closes both lips, as for bilabials (m, b, p).
	PressedLips

	// Rounded is an open rounded mouth for back vowels ("oh").
	Rounded

	// WideSmile spreads the lips for high-front vowels ("ee").
	WideSmile

	// TeethOnLip rests the upper teeth on the lower lip (f, v). Extended set only.
	TeethOnLip

	// TongueVisible shows the tongue between the teeth ("th"). Extended set only.
	TongueVisible

	// Pucker is a tight lip rounding (w, "oo", "sh"). Extended set only.
	Pucker
)

// BaseCount is the number of symbols in the base vocabulary.
const BaseCount = 6

// ExtendedCount is the number of symbols in the extended vocabulary.
const ExtendedCount = 9

var names = [ExtendedCount]string{
	Silence:       "silence",
	SmallOpen:     "small_open",
	WideOpen:      "wide_open",
	PressedLips:   "pressed_lips",
	Rounded:       "rounded",
	WideSmile:     "wide_smile",
	TeethOnLip:    "teeth_on_lip",
	TongueVisible: "tongue_visible",
	Pucker:        "pucker",
}

// String returns the stable lowercase key of v (e.g. "wide_open").
func (v Viseme) String() string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("viseme(%d)", uint8(v))
}

// IsValid reports whether v belongs to the extended vocabulary.
func (v Viseme) IsValid() bool {
	return v < ExtendedCount
}

// IsBase reports whether v belongs to the base vocabulary.
func (v Viseme) IsBase() bool {
	return v < BaseCount
}

// Parse returns the Viseme whose key is s.
func Parse(s string) (Viseme, error) {
	for i, n := range names {
		if n == s {
			return Viseme(i), nil
		}
	}
	return Silence, fmt.Errorf("viseme: unknown key %q", s)
}

// All returns every symbol of the extended vocabulary in declaration order.
func All() []Viseme {
	out := make([]Viseme, ExtendedCount)
	for i := range out {
		out[i] = Viseme(i)
	}
	return out
}

// Collapse maps v onto the base vocabulary. Base symbols map to themselves;
// invalid values collapse to [Silence].
func Collapse(v Viseme) Viseme {
	switch v {
	case TeethOnLip:
		return PressedLips
	case TongueVisible:
		return SmallOpen
	case Pucker:
		return Rounded
	}
	if v.IsBase() {
		return v
	}
	return Silence
}

// MarshalText implements [encoding.TextMarshaler].
func (v Viseme) MarshalText() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("viseme: invalid value %d", uint8(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (v *Viseme) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}
