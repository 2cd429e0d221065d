// Package mock provides an in-memory implementation of [audio.Source] for use
// in unit tests.
//
// The mock is safe for concurrent use. It records every method call so tests
// can assert on call counts, and it exposes fields that control return values.
//
// Typical usage:
//
//	src := &mock.Source{Rate: 48000}
//	src.Push(mock.Tone(48000, 1000, 0.8, 2048))
//	h.AttachAudio(ctx, src)
package mock

import (
	"math"
	"sync"

	"github.com/MrWong99/visemesync/pkg/audio"
)

// Source is a scripted [audio.Source]. Each call to Analyse pops the next
// queued snapshot; once the queue is empty the last snapshot repeats. With no
// snapshot queued, Analyse reports silence.
type Source struct {
	mu sync.Mutex

	// Rate is returned by SampleRate.
	Rate int

	// AnalyseErr, if non-nil, is returned by every Analyse call.
	AnalyseErr error

	// PanicOnAnalyse makes Analyse panic with this value when non-nil.
	PanicOnAnalyse any

	queue []audio.Analysis
	last  audio.Analysis

	done      chan struct{}
	closeOnce sync.Once

	// CallCountAnalyse records how many times Analyse was called.
	CallCountAnalyse int
}

var _ audio.Source = (*Source)(nil)

// Push queues snapshots for subsequent Analyse calls.
func (s *Source) Push(a ...audio.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, a...)
}

// SetErr changes the error returned by Analyse.
func (s *Source) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AnalyseErr = err
}

// Calls returns the number of Analyse calls so far.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountAnalyse
}

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rate
}

// Analyse implements [audio.Source].
func (s *Source) Analyse(dst *audio.Analysis) error {
	s.mu.Lock()
	s.CallCountAnalyse++
	if p := s.PanicOnAnalyse; p != nil {
		s.mu.Unlock()
		panic(p)
	}
	if s.AnalyseErr != nil {
		err := s.AnalyseErr
		s.mu.Unlock()
		return err
	}
	if len(s.queue) > 0 {
		s.last = s.queue[0]
		s.queue = s.queue[1:]
	}
	cur := s.last
	s.mu.Unlock()

	dst.SampleRate = s.SampleRate()
	dst.TimeDomain = append(dst.TimeDomain[:0], cur.TimeDomain...)
	dst.Magnitudes = append(dst.Magnitudes[:0], cur.Magnitudes...)
	return nil
}

// Done implements [audio.Source].
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Close closes the Done channel and makes Analyse return
// [audio.ErrSourceClosed].
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.done == nil {
			s.done = make(chan struct{})
		}
		close(s.done)
		s.AnalyseErr = audio.ErrSourceClosed
		s.mu.Unlock()
	})
}

// Tone builds a snapshot whose time domain is a constant-amplitude square
// wave of the given RMS and whose spectrum peaks at freqHz.
func Tone(rate int, freqHz, rms float64, size int) audio.Analysis {
	a := audio.Analysis{
		SampleRate: rate,
		TimeDomain: make([]float32, size),
		Magnitudes: make([]float32, size/2),
	}
	for i := range a.TimeDomain {
		v := float32(rms)
		if i%2 == 1 {
			v = -v
		}
		a.TimeDomain[i] = v
	}
	if rate > 0 && len(a.Magnitudes) > 0 && freqHz > 0 {
		bin := int(math.Round(freqHz * float64(len(a.Magnitudes)) / (float64(rate) / 2)))
		bin = max(0, min(bin, len(a.Magnitudes)-1))
		a.Magnitudes[bin] = 1
	}
	return a
}

// Quiet builds an all-zero snapshot.
func Quiet(rate, size int) audio.Analysis {
	return audio.Analysis{
		SampleRate: rate,
		TimeDomain: make([]float32, size),
		Magnitudes: make([]float32, size/2),
	}
}
