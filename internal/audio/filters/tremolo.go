// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import "github.com/rapidaai/wavelink/internal/protocol"

// Tremolo modulates amplitude with a low-frequency oscillator.
type Tremolo struct {
	frequency float32
	depth     float32
	osc       lfo
}

func NewTremolo(cfg *protocol.TremoloConfig) *Tremolo {
	f := &Tremolo{frequency: 2, depth: 0.5}
	if cfg.Frequency != nil && *cfg.Frequency > 0 {
		f.frequency = *cfg.Frequency
	}
	if cfg.Depth != nil {
		f.depth = clamp01(*cfg.Depth)
	}
	f.osc = newLFO(float64(f.frequency), float64(f.depth))
	return f
}

func (f *Tremolo) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		// 1-depth at the LFO peak, 1 at the trough.
		gain := 1 - f.osc.nextUnipolar()
		samples[i] = clampSample(float64(samples[i]) * gain)
		samples[i+1] = clampSample(float64(samples[i+1]) * gain)
	}
}

func (f *Tremolo) IsEnabled() bool { return f.depth > 0.001 }

func (f *Tremolo) Reset() { f.osc.reset() }
