package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
)

// Decoder turns frames of any format into mono float32 samples at a target
// rate. It warns once on the first format mismatch and once on corrupt data.
// Create one per stream; it is not safe for concurrent use.
type Decoder struct {
	// TargetRate is the output sample rate. Zero keeps each frame's own rate.
	TargetRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Decode converts frame to mono samples in [-1, 1]. Frames with an invalid
// format or a byte count not aligned to whole sample frames return nil.
func (d *Decoder) Decode(frame AudioFrame) []float32 {
	if err := frame.Format().Validate(); err != nil || len(frame.Data)%(2*frame.Channels) != 0 {
		d.warnedCorrupt.Do(func() {
			slog.Warn("audio decoder: malformed PCM frame, dropping",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return nil
	}

	mono := DecodeMono(frame.Data, frame.Channels)
	if d.TargetRate <= 0 || frame.SampleRate == d.TargetRate {
		return mono
	}

	d.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: resampling",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(d.TargetRate, 1),
		)
	})
	return Resample(mono, frame.SampleRate, d.TargetRate)
}

// DecodeMono converts interleaved int16 LE PCM to mono float32 by averaging
// the channels of each sample frame. Trailing partial frames are ignored.
func DecodeMono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		return nil
	}
	stride := 2 * channels
	frames := len(pcm) / stride
	out := make([]float32, frames)
	for i := range frames {
		var sum int32
		base := i * stride
		for c := range channels {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[base+2*c:])))
		}
		out[i] = float32(sum) / float32(channels) / 32768
	}
	return out
}

// EncodePCM16 converts mono samples to int16 LE PCM, clamping to [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(v*32767))))
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate with linear
// interpolation. Matching or invalid rates return the input unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	step := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
