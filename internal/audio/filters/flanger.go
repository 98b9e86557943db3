// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import (
	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/protocol"
)

// Flanger is a short modulated delay (under ~10 ms) summed with the dry
// signal, with feedback for the characteristic jet sweep.
type Flanger struct {
	rate     float64
	depth    float64
	feedback float64

	osc    lfo
	delayL delayLine
	delayR delayLine
}

const flangerMaxDelay = pcm.SampleRate / 100 // 10 ms

func NewFlanger(cfg *protocol.FlangerConfig) *Flanger {
	f := &Flanger{rate: 0.3, depth: 0.7}
	if cfg.Rate != nil && *cfg.Rate > 0 {
		f.rate = float64(*cfg.Rate)
	}
	if cfg.Depth != nil {
		f.depth = float64(clamp01(*cfg.Depth))
	}
	if cfg.Feedback != nil {
		f.feedback = float64(clampF(*cfg.Feedback, 0, 0.95))
	}
	f.osc = newLFO(f.rate, 1)
	f.delayL = newDelayLine(flangerMaxDelay * 2)
	f.delayR = newDelayLine(flangerMaxDelay * 2)
	return f
}

func (f *Flanger) Process(samples []int16) {
	sweep := f.depth * float64(flangerMaxDelay-2)

	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		delay := 1 + sweep*(f.osc.next()+1)/2
		wetL := f.delayL.readAt(delay)
		wetR := f.delayR.readAt(delay)

		f.delayL.push(l + wetL*f.feedback)
		f.delayR.push(r + wetR*f.feedback)

		samples[i] = clampSample((l + wetL) * 0.5)
		samples[i+1] = clampSample((r + wetR) * 0.5)
	}
}

func (f *Flanger) IsEnabled() bool { return f.depth > 0.001 }

func (f *Flanger) Reset() {
	f.osc.reset()
	f.delayL.reset()
	f.delayR.reset()
}
