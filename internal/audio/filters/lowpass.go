// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import "github.com/rapidaai/wavelink/internal/protocol"

// LowPass is the Lavalink smoothing low-pass: a running average where
// higher smoothing weighs history more.
type LowPass struct {
	smoothing float64
	prevL     float64
	prevR     float64
}

func NewLowPass(cfg *protocol.LowPassConfig) *LowPass {
	f := &LowPass{smoothing: 20}
	if cfg.Smoothing != nil {
		f.smoothing = float64(*cfg.Smoothing)
	}
	return f
}

func (f *LowPass) Process(samples []int16) {
	alpha := 1 / f.smoothing
	for i := 0; i < len(samples); i += 2 {
		f.prevL += alpha * (float64(samples[i]) - f.prevL)
		f.prevR += alpha * (float64(samples[i+1]) - f.prevR)
		samples[i] = clampSample(f.prevL)
		samples[i+1] = clampSample(f.prevR)
	}
}

// Smoothing ≤ 1 is a no-op by definition.
func (f *LowPass) IsEnabled() bool { return f.smoothing > 1 }

func (f *LowPass) Reset() {
	f.prevL, f.prevR = 0, 0
}
