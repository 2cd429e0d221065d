// Package audio provides raw PCM frames, format conversion and the spectral
// analysis source that drives audio-mode lip sync.
//
// Frames carry little-endian int16 PCM at any sample rate and channel count.
// A [StreamAnalyser] consumes a channel of frames, keeps the most recent
// window of mono samples and exposes time-domain and smoothed
// frequency-domain snapshots through the [Source] interface.
//
// The package lives under pkg/ because external producers (TTS providers,
// capture adapters) are expected to push frames into it.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrSourceClosed is returned by [Source.Analyse] once the source has no more
// audio to offer. The engine treats it as the end of the session.
var ErrSourceClosed = errors.New("audio: source closed")

// AudioFrame is a chunk of interleaved int16 little-endian PCM.
type AudioFrame struct {
	Data []byte

	// SampleRate in Hz (e.g. 48000 for a browser tap, 24000 for most TTS).
	SampleRate int

	// Channels is 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks the frame position relative to stream start.
	Timestamp time.Duration
}

// Format returns the frame's sample format.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Duration reports how much audio the frame holds. Malformed formats yield 0.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate reports whether the format can be decoded.
func (f Format) Validate() error {
	var errs []error
	if f.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", f.SampleRate))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channel count must be positive, got %d", f.Channels))
	}
	return errors.Join(errs...)
}

func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}

// Analysis is a snapshot of a [Source]. Buffers are reused between calls to
// avoid per-tick allocation; callers must not retain them across calls.
type Analysis struct {
	// TimeDomain holds the most recent window of mono samples in [-1, 1],
	// oldest first.
	TimeDomain []float32

	// Magnitudes holds smoothed spectral magnitudes, one per bin up to (but
	// excluding) the Nyquist bin. Bin k covers k*SampleRate/(2*len) Hz.
	Magnitudes []float32

	SampleRate int
}

// Source is a live audio source the engine can sample on every tick.
type Source interface {
	// SampleRate returns the rate of the analysed signal. A non-positive rate
	// means the environment cannot provide spectral data.
	SampleRate() int

	// Analyse fills dst with the current snapshot. It returns
	// [ErrSourceClosed] once the source is exhausted.
	Analyse(dst *Analysis) error

	// Done is closed when the source has ended.
	Done() <-chan struct{}
}
