package classify

import (
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/visemesync/internal/feature"
	"github.com/MrWong99/visemesync/pkg/viseme"
)

func TestAudio_Rules(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	tests := []struct {
		name string
		in   feature.Sample
		want viseme.Viseme
	}{
		{"not speaking", feature.Sample{Amplitude: 0.02, DominantFrequencyHz: 3000}, viseme.Silence},
		{"not speaking but loud flag off", feature.Sample{Amplitude: 0.9, IsSpeaking: false}, viseme.Silence},
		{"speaking but below silence", feature.Sample{Amplitude: 0.04, IsSpeaking: true}, viseme.Silence},
		{"loud", feature.Sample{Amplitude: 0.61, DominantFrequencyHz: 300, IsSpeaking: true}, viseme.WideOpen},
		{"loud beats high frequency", feature.Sample{Amplitude: 0.9, DominantFrequencyHz: 5000, IsSpeaking: true}, viseme.WideOpen},
		{"high frequency", feature.Sample{Amplitude: 0.4, DominantFrequencyHz: 2500, IsSpeaking: true}, viseme.WideSmile},
		{"boundary amplitude 0.6 at 1500Hz", feature.Sample{Amplitude: 0.6, DominantFrequencyHz: 1500, IsSpeaking: true}, viseme.SmallOpen},
		{"2000Hz is small open", feature.Sample{Amplitude: 0.2, DominantFrequencyHz: 2000, IsSpeaking: true}, viseme.SmallOpen},
		{"back vowel", feature.Sample{Amplitude: 0.4, DominantFrequencyHz: 500, IsSpeaking: true}, viseme.Rounded},
		{"800Hz loud is rounded", feature.Sample{Amplitude: 0.31, DominantFrequencyHz: 800, IsSpeaking: true}, viseme.Rounded},
		{"quiet low band is pressed", feature.Sample{Amplitude: 0.2, DominantFrequencyHz: 500, IsSpeaking: true}, viseme.PressedLips},
		{"very low frequency consonant", feature.Sample{Amplitude: 0.25, DominantFrequencyHz: 100, IsSpeaking: true}, viseme.PressedLips},
		{"quiet low frequency default", feature.Sample{Amplitude: 0.1, DominantFrequencyHz: 100, IsSpeaking: true}, viseme.SmallOpen},
		{"pressed band upper edge exclusive", feature.Sample{Amplitude: 0.35, DominantFrequencyHz: 150, IsSpeaking: true}, viseme.SmallOpen},
		{"nan amplitude", feature.Sample{Amplitude: math.NaN(), IsSpeaking: true}, viseme.Silence},
		{"negative frequency", feature.Sample{Amplitude: 0.5, DominantFrequencyHz: -10, IsSpeaking: true}, viseme.SmallOpen},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Audio(tc.in, th); got != tc.want {
				t.Errorf("Audio(%+v) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestAudio_TotalOverGrid(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	for amp := 0.0; amp <= 1.0; amp += 0.01 {
		for hz := 0.0; hz <= 8000; hz += 37 {
			for _, speaking := range []bool{true, false} {
				got := Audio(feature.Sample{Amplitude: amp, DominantFrequencyHz: hz, IsSpeaking: speaking}, th)
				if !got.IsBase() {
					t.Fatalf("Audio(amp=%v, hz=%v, speaking=%v) = %s, outside base vocabulary", amp, hz, speaking, got)
				}
			}
		}
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []viseme.Viseme
	}{
		{"single word no trailing silence", "hi", []viseme.Viseme{viseme.WideOpen, viseme.WideSmile}},
		{"case insensitive", "HI", []viseme.Viseme{viseme.WideOpen, viseme.WideSmile}},
		{"silence between words only", "hi mom", []viseme.Viseme{
			viseme.WideOpen, viseme.WideSmile,
			viseme.Silence,
			viseme.PressedLips, viseme.Rounded, viseme.PressedLips,
		}},
		{"th digraph consumes both", "with", []viseme.Viseme{viseme.Pucker, viseme.WideSmile, viseme.TongueVisible}},
		{"silent terminal e", "make", []viseme.Viseme{viseme.PressedLips, viseme.WideOpen, viseme.SmallOpen}},
		{"short word keeps e", "me", []viseme.Viseme{viseme.PressedLips, viseme.WideSmile}},
		{"ee digraph at end is not silent", "tree", []viseme.Viseme{viseme.SmallOpen, viseme.SmallOpen, viseme.WideSmile}},
		{"labiodental", "five", []viseme.Viseme{viseme.TeethOnLip, viseme.WideSmile, viseme.TeethOnLip}},
		{"punctuation stripped", "oh, no!", []viseme.Viseme{
			viseme.Rounded, viseme.WideOpen,
			viseme.Silence,
			viseme.SmallOpen, viseme.Rounded,
		}},
		{"pure punctuation words dropped", "yes ... no", []viseme.Viseme{
			viseme.WideSmile, viseme.WideSmile, viseme.SmallOpen,
			viseme.Silence,
			viseme.SmallOpen, viseme.Rounded,
		}},
		{"empty", "", []viseme.Viseme{viseme.Silence}},
		{"whitespace only", " \t\n ", []viseme.Viseme{viseme.Silence}},
		{"unmapped runes default", "7ß", []viseme.Viseme{viseme.SmallOpen, viseme.SmallOpen}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Text(tc.in)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Text(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestText_NeverLeadingOrTrailingSilence(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"  hello world  ", "a b c", "the quick brown fox.", "…  ok"} {
		got := Text(in)
		if got[0] == viseme.Silence || got[len(got)-1] == viseme.Silence {
			t.Errorf("Text(%q) = %v has leading or trailing silence", in, got)
		}
		for _, v := range got {
			if !v.IsValid() {
				t.Errorf("Text(%q) produced invalid viseme %d", in, v)
			}
		}
	}
}

func TestTextWords(t *testing.T) {
	t.Parallel()

	words := TextWords("Hello, brave world!")
	if len(words) != 3 {
		t.Fatalf("len(words) = %d, want 3", len(words))
	}
	if words[0].Text != "hello" || words[2].Text != "world" {
		t.Errorf("words = %+v", words)
	}
	for _, w := range words {
		if slices.Contains(w.Visemes, viseme.Silence) {
			t.Errorf("word %q contains silence", w.Text)
		}
	}
}
