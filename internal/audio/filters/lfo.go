// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import (
	"math"

	"github.com/rapidaai/wavelink/internal/audio/pcm"
)

// lfo is a phase-accumulating sine oscillator ticked once per sample.
type lfo struct {
	phase     float64
	increment float64
	depth     float64
}

func newLFO(frequency, depth float64) lfo {
	l := lfo{}
	l.update(frequency, depth)
	return l
}

func (l *lfo) update(frequency, depth float64) {
	l.increment = 2 * math.Pi * frequency / float64(pcm.SampleRate)
	l.depth = depth
}

// next advances the oscillator and returns depth·sin(phase).
func (l *lfo) next() float64 {
	v := math.Sin(l.phase) * l.depth
	l.phase += l.increment
	if l.phase >= 2*math.Pi {
		l.phase -= 2 * math.Pi
	}
	return v
}

// nextUnipolar maps the oscillator into [0, depth].
func (l *lfo) nextUnipolar() float64 {
	return (l.next() + l.depth) / 2
}

func (l *lfo) reset() {
	l.phase = 0
}

// delayLine is a fixed-capacity circular buffer with fractional-delay reads.
type delayLine struct {
	buf []float64
	pos int
}

func newDelayLine(capacity int) delayLine {
	if capacity < 1 {
		capacity = 1
	}
	return delayLine{buf: make([]float64, capacity)}
}

func (d *delayLine) push(v float64) {
	d.buf[d.pos] = v
	d.pos++
	if d.pos >= len(d.buf) {
		d.pos = 0
	}
}

// readAt returns the sample `delay` samples in the past, linearly
// interpolated for fractional delays. delay is clamped to capacity-1.
func (d *delayLine) readAt(delay float64) float64 {
	max := float64(len(d.buf) - 1)
	if delay < 0 {
		delay = 0
	}
	if delay > max {
		delay = max
	}
	whole := int(delay)
	frac := delay - float64(whole)

	i0 := d.pos - 1 - whole
	for i0 < 0 {
		i0 += len(d.buf)
	}
	i1 := i0 - 1
	if i1 < 0 {
		i1 += len(d.buf)
	}
	return d.buf[i0]*(1-frac) + d.buf[i1]*frac
}

func (d *delayLine) reset() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	d.pos = 0
}
