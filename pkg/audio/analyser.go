package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// DefaultFFTSize matches the analyser window browsers use for speech.
	DefaultFFTSize = 2048

	// MinFFTSize is the smallest accepted window.
	MinFFTSize = 32

	// DefaultSmoothing is the time constant blending each spectrum with the
	// previous one.
	DefaultSmoothing = 0.8
)

// AnalyserConfig configures a [StreamAnalyser].
type AnalyserConfig struct {
	// SampleRate is the rate frames are resampled to before analysis.
	// Non-positive rates are kept as-is so the engine can reject the source.
	SampleRate int

	// FFTSize is the analysis window length in samples. Zero means
	// [DefaultFFTSize]; values below [MinFFTSize] are raised to it.
	FFTSize int

	// Smoothing is in [0, 1). Zero disables smoothing; values outside the
	// range fall back to [DefaultSmoothing].
	Smoothing float64
}

func (c AnalyserConfig) normalised() AnalyserConfig {
	switch {
	case c.FFTSize == 0:
		c.FFTSize = DefaultFFTSize
	case c.FFTSize < MinFFTSize:
		c.FFTSize = MinFFTSize
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 || math.IsNaN(c.Smoothing) {
		c.Smoothing = DefaultSmoothing
	}
	return c
}

// StreamAnalyser implements [Source] over a channel of [AudioFrame]s. It is
// meant for real-time paced input such as a playback tap: it always analyses
// the latest FFTSize samples.
//
// Frames are consumed on an internal goroutine. The source ends when the
// input channel closes or [StreamAnalyser.Close] is called.
type StreamAnalyser struct {
	cfg AnalyserConfig

	mu      sync.Mutex
	ring    []float32
	pos     int
	closed  bool
	written int64

	// Owned by the Analyse caller.
	amu      sync.Mutex
	fft      *fourier.FFT
	windowed []float64
	coeffs   []complex128
	smoothed []float64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ Source = (*StreamAnalyser)(nil)

// NewStreamAnalyser starts consuming in.
func NewStreamAnalyser(in <-chan AudioFrame, cfg AnalyserConfig) *StreamAnalyser {
	cfg = cfg.normalised()
	a := &StreamAnalyser{
		cfg:      cfg,
		ring:     make([]float32, cfg.FFTSize),
		fft:      fourier.NewFFT(cfg.FFTSize),
		windowed: make([]float64, cfg.FFTSize),
		coeffs:   make([]complex128, cfg.FFTSize/2+1),
		smoothed: make([]float64, cfg.FFTSize/2),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go a.pump(in)
	return a
}

// SampleRate implements [Source].
func (a *StreamAnalyser) SampleRate() int { return a.cfg.SampleRate }

// FFTSize returns the analysis window length.
func (a *StreamAnalyser) FFTSize() int { return a.cfg.FFTSize }

// Done implements [Source].
func (a *StreamAnalyser) Done() <-chan struct{} { return a.done }

// SamplesWritten returns how many mono samples have been ingested.
func (a *StreamAnalyser) SamplesWritten() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

// Close stops consuming input. Frames still queued on the input channel are
// left for the producer. Close is idempotent.
func (a *StreamAnalyser) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

func (a *StreamAnalyser) pump(in <-chan AudioFrame) {
	defer close(a.done)
	defer func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
	}()

	dec := Decoder{TargetRate: a.cfg.SampleRate}
	for {
		select {
		case <-a.stop:
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			a.write(dec.Decode(frame))
		}
	}
}

// write appends samples to the ring, keeping only the newest window.
func (a *StreamAnalyser) write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	a.written += int64(len(samples))
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % n
	}
}

// Analyse implements [Source]. Before the window has filled, missing samples
// read as zero.
func (a *StreamAnalyser) Analyse(dst *Analysis) error {
	n := a.cfg.FFTSize
	dst.SampleRate = a.cfg.SampleRate
	dst.TimeDomain = resize(dst.TimeDomain, n)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrSourceClosed
	}
	// Oldest sample sits at pos once the ring has wrapped.
	copy(dst.TimeDomain, a.ring[a.pos:])
	copy(dst.TimeDomain[n-a.pos:], a.ring[:a.pos])
	a.mu.Unlock()

	a.amu.Lock()
	defer a.amu.Unlock()

	for i, s := range dst.TimeDomain {
		a.windowed[i] = float64(s)
	}
	window.Hann(a.windowed)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	bins := n / 2
	dst.Magnitudes = resize(dst.Magnitudes, bins)
	tau := a.cfg.Smoothing
	for k := range bins {
		mag := cmplx.Abs(a.coeffs[k]) / float64(n)
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			mag = 0
		}
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		dst.Magnitudes[k] = float32(a.smoothed[k])
	}
	return nil
}

func resize(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}
