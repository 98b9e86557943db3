// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package processor

// Resampler converts interleaved stereo i16 between rates by linear
// interpolation. The final frame of each chunk is carried over so output
// is continuous across chunk boundaries. Reset on every seek.
type Resampler struct {
	sourceRate int
	targetRate int
	step       float64
	// frac is the fractional position into the virtual stream
	// [carried frame, chunk frames...], in source frames.
	frac   float64
	lastL  int16
	lastR  int16
	primed bool
}

// NewResampler builds a stereo resampler. sourceRate == targetRate is a
// pass-through.
func NewResampler(sourceRate, targetRate int) *Resampler {
	return &Resampler{
		sourceRate: sourceRate,
		targetRate: targetRate,
		step:       float64(sourceRate) / float64(targetRate),
	}
}

// Passthrough reports whether no rate conversion happens.
func (r *Resampler) Passthrough() bool { return r.sourceRate == r.targetRate }

// Process converts one interleaved stereo chunk, appending to dst and
// returning it.
func (r *Resampler) Process(src []int16, dst []int16) []int16 {
	if r.Passthrough() {
		return append(dst, src...)
	}
	frames := len(src) / 2
	if frames == 0 {
		return dst
	}

	// frame(i): i == -1 is the carried boundary frame.
	frameAt := func(i int) (int16, int16) {
		if i < 0 {
			if r.primed {
				return r.lastL, r.lastR
			}
			return src[0], src[1]
		}
		if i >= frames {
			i = frames - 1
		}
		return src[i*2], src[i*2+1]
	}

	// Positions are offset by one: pos 0 is the carried frame, pos 1 is
	// src frame 0. A fresh resampler starts at the first src frame.
	pos := r.frac
	if !r.primed {
		pos = 1
	}

	for pos < float64(frames) {
		base := int(pos) - 1
		t := pos - float64(int(pos))
		l0, r0 := frameAt(base)
		l1, r1 := frameAt(base + 1)
		dst = append(dst,
			int16(float64(l0)+(float64(l1)-float64(l0))*t),
			int16(float64(r0)+(float64(r1)-float64(r0))*t),
		)
		pos += r.step
	}

	r.frac = pos - float64(frames)
	r.lastL, r.lastR = src[(frames-1)*2], src[(frames-1)*2+1]
	r.primed = true
	return dst
}

// Reset drops interpolation state; call after a seek.
func (r *Resampler) Reset() {
	r.frac = 0
	r.primed = false
	r.lastL, r.lastR = 0, 0
}

// toStereo widens mono (duplicate) or narrows multi-channel (first pair)
// input to interleaved stereo.
func toStereo(src []int16, channels int) []int16 {
	switch channels {
	case 2:
		return src
	case 1:
		out := make([]int16, len(src)*2)
		for i, s := range src {
			out[i*2] = s
			out[i*2+1] = s
		}
		return out
	default:
		frames := len(src) / channels
		out := make([]int16, frames*2)
		for i := 0; i < frames; i++ {
			out[i*2] = src[i*channels]
			out[i*2+1] = src[i*channels+1]
		}
		return out
	}
}
