// Package feature turns one analysis frame of audio into the scalar features
// used by the audio-driven viseme classifier.
//
// [Extract] is a pure function: it keeps no state between calls. Temporal
// smoothing of the spectrum is the audio source's job, not this package's.
package feature

import "math"

const (
	// DefaultGain scales the raw RMS so that normal speech lands well inside [0, 1].
	DefaultGain = 2.0

	// DefaultSilenceThreshold is the amplitude at or below which a frame is
	// considered silent.
	DefaultSilenceThreshold = 0.05
)

// Config holds the extractor tunables.
type Config struct {
	// Gain multiplies the RMS before clamping. Default: [DefaultGain].
	Gain float64

	// SilenceThreshold is the amplitude that must be exceeded for IsSpeaking.
	// Default: [DefaultSilenceThreshold].
	SilenceThreshold float64
}

// DefaultConfig returns the default extractor configuration.
func DefaultConfig() Config {
	return Config{Gain: DefaultGain, SilenceThreshold: DefaultSilenceThreshold}
}

// Frame is one analysis frame as delivered by an audio source.
type Frame struct {
	// TimeDomain holds samples normalised to [-1, 1].
	TimeDomain []float32

	// Magnitudes holds one magnitude per frequency bin, covering 0 Hz up to
	// the Nyquist frequency.
	Magnitudes []float32

	// SampleRate of the analysed signal in Hz.
	SampleRate int
}

// Sample is the feature vector derived from one Frame.
type Sample struct {
	// Amplitude is the gain-scaled RMS clamped to [0, 1].
	Amplitude float64

	// DominantFrequencyHz is the centre frequency of the loudest bin. Never negative.
	DominantFrequencyHz float64

	// IsSpeaking is true iff Amplitude exceeds the silence threshold.
	IsSpeaking bool
}

// Extract computes the feature sample for f. It is total: empty buffers,
// zero sample rates and NaN values yield a silent sample rather than a panic.
func Extract(f Frame, cfg Config) Sample {
	if cfg.Gain <= 0 {
		cfg.Gain = DefaultGain
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}

	amp := clamp(RMS(f.TimeDomain)*cfg.Gain, 0, 1)
	return Sample{
		Amplitude:           amp,
		DominantFrequencyHz: DominantFrequency(f.Magnitudes, f.SampleRate),
		IsSpeaking:          amp > cfg.SilenceThreshold,
	}
}

// RMS returns the root-mean-square of samples. Values outside [-1, 1] are
// clamped first; NaN and Inf count as zero.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v = clamp(v, -1, 1)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DominantFrequency returns the frequency in Hz of the bin with the largest
// magnitude, using bin/binCount * (sampleRate/2). An empty or all-zero
// spectrum yields 0.
func DominantFrequency(magnitudes []float32, sampleRate int) float64 {
	if len(magnitudes) == 0 || sampleRate <= 0 {
		return 0
	}
	best := -1
	var bestMag float32
	for i, m := range magnitudes {
		if m != m { // NaN
			continue
		}
		if m > bestMag {
			best, bestMag = i, m
		}
	}
	if best < 0 {
		return 0
	}
	return float64(best) / float64(len(magnitudes)) * (float64(sampleRate) / 2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
