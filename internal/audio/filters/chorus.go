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

// Chorus blends modulated-delay copies with the dry signal. The left and
// right oscillators run a quarter cycle apart for stereo width.
type Chorus struct {
	rate     float64
	depth    float64
	delayMs  float64
	mix      float64
	feedback float64

	oscL   lfo
	oscR   lfo
	delayL delayLine
	delayR delayLine
}

const chorusMaxDelayMs = 60

func NewChorus(cfg *protocol.ChorusConfig) *Chorus {
	f := &Chorus{rate: 0.8, depth: 0.5, delayMs: 20, mix: 0.5}
	if cfg.Rate != nil && *cfg.Rate > 0 {
		f.rate = float64(*cfg.Rate)
	}
	if cfg.Depth != nil {
		f.depth = float64(clamp01(*cfg.Depth))
	}
	if cfg.Delay != nil && *cfg.Delay > 0 {
		f.delayMs = float64(clampF(*cfg.Delay, 1, chorusMaxDelayMs))
	}
	if cfg.Mix != nil {
		f.mix = float64(clamp01(*cfg.Mix))
	}
	if cfg.Feedback != nil {
		f.feedback = float64(clampF(*cfg.Feedback, 0, 0.95))
	}

	f.oscL = newLFO(f.rate, 1)
	f.oscR = newLFO(f.rate, 1)
	f.oscR.phase = 1.5707963267948966 // π/2

	cap := pcm.SampleRate * chorusMaxDelayMs / 1000 * 2
	f.delayL = newDelayLine(cap)
	f.delayR = newDelayLine(cap)
	return f
}

func (f *Chorus) Process(samples []int16) {
	base := f.delayMs / 1000 * pcm.SampleRate
	sweep := base * f.depth * 0.5

	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		dl := base + sweep*f.oscL.next()
		dr := base + sweep*f.oscR.next()

		wetL := f.delayL.readAt(dl)
		wetR := f.delayR.readAt(dr)

		f.delayL.push(l + wetL*f.feedback)
		f.delayR.push(r + wetR*f.feedback)

		samples[i] = clampSample(l*(1-f.mix) + wetL*f.mix)
		samples[i+1] = clampSample(r*(1-f.mix) + wetR*f.mix)
	}
}

func (f *Chorus) IsEnabled() bool { return f.mix > 0.001 && f.depth > 0.001 }

func (f *Chorus) Reset() {
	f.oscL.reset()
	f.oscR.reset()
	f.oscR.phase = 1.5707963267948966
	f.delayL.reset()
	f.delayR.reset()
}
