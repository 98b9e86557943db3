// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import (
	"math"

	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/protocol"
)

// Phaser sweeps a cascade of all-pass stages between two corner
// frequencies and mixes the result back with the dry signal.
type Phaser struct {
	stages   int
	rate     float64
	depth    float64
	feedback float64
	mix      float64
	minFreq  float64
	maxFreq  float64

	osc      lfo
	states   [][2]biquadState
	lastWetL float64
	lastWetR float64
}

func NewPhaser(cfg *protocol.PhaserConfig) *Phaser {
	f := &Phaser{stages: 4, rate: 0.5, depth: 0.8, mix: 0.5, minFreq: 300, maxFreq: 1800}
	if cfg.Stages != nil && *cfg.Stages > 0 {
		f.stages = int(*cfg.Stages)
		if f.stages > 12 {
			f.stages = 12
		}
	}
	if cfg.Rate != nil && *cfg.Rate > 0 {
		f.rate = float64(*cfg.Rate)
	}
	if cfg.Depth != nil {
		f.depth = float64(clamp01(*cfg.Depth))
	}
	if cfg.Feedback != nil {
		f.feedback = float64(clampF(*cfg.Feedback, 0, 0.95))
	}
	if cfg.Mix != nil {
		f.mix = float64(clamp01(*cfg.Mix))
	}
	if cfg.MinFrequency != nil && *cfg.MinFrequency > 0 {
		f.minFreq = float64(*cfg.MinFrequency)
	}
	if cfg.MaxFrequency != nil && float64(*cfg.MaxFrequency) > f.minFreq {
		f.maxFreq = float64(*cfg.MaxFrequency)
	}
	f.osc = newLFO(f.rate, 1)
	f.states = make([][2]biquadState, f.stages)
	return f
}

func (f *Phaser) Process(samples []int16) {
	// Coefficients are recomputed once per frame; the sweep is slow
	// relative to 20 ms.
	sweep := (f.osc.next() + 1) / 2 * f.depth
	freq := f.minFreq * math.Pow(f.maxFreq/f.minFreq, sweep)
	coeffs := makeAllPass(freq, 0.7071, pcm.SampleRate)

	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		wetL := l + f.lastWetL*f.feedback
		wetR := r + f.lastWetR*f.feedback
		for s := range f.states {
			wetL = f.states[s][0].process(coeffs, wetL)
			wetR = f.states[s][1].process(coeffs, wetR)
		}
		f.lastWetL, f.lastWetR = wetL, wetR

		samples[i] = clampSample(l*(1-f.mix) + wetL*f.mix)
		samples[i+1] = clampSample(r*(1-f.mix) + wetR*f.mix)
	}
}

func (f *Phaser) IsEnabled() bool { return f.mix > 0.001 && f.depth > 0.001 }

func (f *Phaser) Reset() {
	f.osc.reset()
	for i := range f.states {
		f.states[i][0].reset()
		f.states[i][1].reset()
	}
	f.lastWetL, f.lastWetR = 0, 0
}
