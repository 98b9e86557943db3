// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import "github.com/rapidaai/wavelink/internal/protocol"

// Timescale changes playback speed, pitch and rate. It is the only
// non-length-preserving stage: for an input of N samples the output
// converges to N/factor, so the chain buffers its output and the mixer
// pulls fixed-size frames via Chain.FillFrame.
//
// Implementation: speed/rate resample the stream; pitch shifts via the
// same resampler combined with an output-rate correction, which is the
// classic tape-style (speed-linked) pitch change.
type Timescale struct {
	speed float64
	pitch float64
	rate  float64

	// pos is the fractional read cursor into the virtual input stream.
	pos    float64
	lastL  float64
	lastR  float64
	primed bool
}

func NewTimescale(cfg *protocol.TimescaleConfig) *Timescale {
	f := &Timescale{speed: 1, pitch: 1, rate: 1}
	if cfg.Speed != nil && *cfg.Speed > 0 {
		f.speed = clampFloat64(*cfg.Speed, 0.1, 10)
	}
	if cfg.Pitch != nil && *cfg.Pitch > 0 {
		f.pitch = clampFloat64(*cfg.Pitch, 0.1, 10)
	}
	if cfg.Rate != nil && *cfg.Rate > 0 {
		f.rate = clampFloat64(*cfg.Rate, 0.1, 10)
	}
	return f
}

// factor is input frames consumed per output frame.
func (f *Timescale) factor() float64 {
	return f.speed * f.pitch * f.rate
}

// Resample consumes one interleaved stereo chunk and appends the
// timescaled output to dst.
func (f *Timescale) Resample(src []int16, dst []int16) []int16 {
	frames := len(src) / 2
	if frames == 0 {
		return dst
	}
	step := f.factor()

	frameAt := func(i int) (float64, float64) {
		if i < 0 {
			if f.primed {
				return f.lastL, f.lastR
			}
			return float64(src[0]), float64(src[1])
		}
		if i >= frames {
			i = frames - 1
		}
		return float64(src[i*2]), float64(src[i*2+1])
	}

	pos := f.pos
	if !f.primed {
		pos = 1
	}
	for pos < float64(frames) {
		base := int(pos) - 1
		t := pos - float64(int(pos))
		l0, r0 := frameAt(base)
		l1, r1 := frameAt(base + 1)
		dst = append(dst,
			clampSample(l0+(l1-l0)*t),
			clampSample(r0+(r1-r0)*t),
		)
		pos += step
	}

	f.pos = pos - float64(frames)
	f.lastL, f.lastR = float64(src[(frames-1)*2]), float64(src[(frames-1)*2+1])
	f.primed = true
	return dst
}

func (f *Timescale) IsEnabled() bool {
	nearOne := func(v float64) bool { return v > 0.999 && v < 1.001 }
	return !nearOne(f.speed) || !nearOne(f.pitch) || !nearOne(f.rate)
}

func (f *Timescale) Reset() {
	f.pos = 0
	f.lastL, f.lastR = 0, 0
	f.primed = false
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
