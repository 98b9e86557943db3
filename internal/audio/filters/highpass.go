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

// HighPass removes content below a cutoff with a biquad per channel, with
// an optional make-up boost.
type HighPass struct {
	cutoff float64
	boost  float64
	coeffs biquadCoeffs
	state  [2]biquadState
}

func NewHighPass(cfg *protocol.HighPassConfig) *HighPass {
	f := &HighPass{cutoff: 100, boost: 1}
	if cfg.CutoffFrequency != nil && *cfg.CutoffFrequency > 0 {
		f.cutoff = float64(*cfg.CutoffFrequency)
	}
	if cfg.BoostFactor != nil && *cfg.BoostFactor > 0 {
		f.boost = float64(*cfg.BoostFactor)
	}
	f.coeffs = makeHighPass(f.cutoff, 0.7071, pcm.SampleRate)
	return f
}

func (f *HighPass) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		l := f.state[0].process(f.coeffs, float64(samples[i])) * f.boost
		r := f.state[1].process(f.coeffs, float64(samples[i+1])) * f.boost
		samples[i] = clampSample(l)
		samples[i+1] = clampSample(r)
	}
}

func (f *HighPass) IsEnabled() bool { return f.cutoff > 1 }

func (f *HighPass) Reset() {
	f.state[0].reset()
	f.state[1].reset()
}
