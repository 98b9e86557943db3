// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package mixer

import (
	"math"

	"github.com/rapidaai/wavelink/internal/audio/pcm"
)

// TapeCurve shapes the pause/resume ramp.
type TapeCurve string

const (
	CurveLinear      TapeCurve = "linear"
	CurveExponential TapeCurve = "exponential"
)

// ParseCurve maps a config string to a curve, defaulting to linear.
func ParseCurve(s string) TapeCurve {
	if s == string(CurveExponential) {
		return CurveExponential
	}
	return CurveLinear
}

type tapeDirection int

const (
	tapeIdle tapeDirection = iota
	tapeStop
	tapeStart
)

// Tape applies a reel-to-reel style gain ramp when a track transitions
// between playing and paused. While ramping it scales samples from 1→0
// (stop) or 0→1 (start); completion is polled by the mixer, which then
// commits the final playback state.
type Tape struct {
	direction    tapeDirection
	curve        TapeCurve
	totalSamples int
	doneSamples  int
	completed    bool
}

// RampTo arms a ramp over durationMs in the given direction.
func (t *Tape) RampTo(durationMs float64, direction string, curve TapeCurve) {
	t.totalSamples = int(durationMs / 1000 * pcm.SampleRate)
	if t.totalSamples < 1 {
		t.totalSamples = 1
	}
	t.doneSamples = 0
	t.curve = curve
	t.completed = false
	if direction == "start" {
		t.direction = tapeStart
	} else {
		t.direction = tapeStop
	}
}

// IsRamping reports whether a ramp is armed and unfinished.
func (t *Tape) IsRamping() bool {
	return t.direction != tapeIdle && !t.completed
}

// IsActive reports whether the tape still influences output.
func (t *Tape) IsActive() bool { return t.direction != tapeIdle }

// gainAt maps ramp progress 0..1 to a gain for the current direction.
func (t *Tape) gainAt(progress float64) float64 {
	if progress > 1 {
		progress = 1
	}
	var g float64
	switch t.curve {
	case CurveExponential:
		// Perceptual curve: most of the drop happens early.
		g = math.Pow(1-progress, 2.5)
	default:
		g = 1 - progress
	}
	if t.direction == tapeStart {
		g = 1 - g
	}
	return g
}

// Process scales samples through the ramp; a no-op when idle.
func (t *Tape) Process(samples []int16) {
	if !t.IsRamping() {
		return
	}

	for i := 0; i < len(samples); i += 2 {
		progress := float64(t.doneSamples) / float64(t.totalSamples)
		g := t.gainAt(progress)
		samples[i] = int16(float64(samples[i]) * g)
		samples[i+1] = int16(float64(samples[i+1]) * g)
		t.doneSamples++
		if t.doneSamples >= t.totalSamples {
			t.completed = true
			// Zero-fill the remainder of the frame on a stop ramp; the
			// mixer commits Paused right after this tick.
			if t.direction == tapeStop {
				for j := i + 2; j < len(samples); j++ {
					samples[j] = 0
				}
			}
			return
		}
	}
}

// CheckCompleted reports, exactly once, that the armed ramp finished and
// returns the tape to idle.
func (t *Tape) CheckCompleted() bool {
	if !t.completed {
		return false
	}
	*t = Tape{}
	return true
}

// Release clears the tape entirely (on stop or track swap).
func (t *Tape) Release() {
	*t = Tape{}
}
