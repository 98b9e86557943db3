// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import (
	"math"

	"github.com/rapidaai/wavelink/internal/protocol"
)

// Normalization keeps peaks at or below maxAmplitude. In adaptive mode an
// AGC envelope additionally lifts quiet material toward the target.
type Normalization struct {
	maxAmplitude float64
	adaptive     bool

	agcGain float64
}

func NewNormalization(cfg *protocol.NormalizationConfig) *Normalization {
	f := &Normalization{maxAmplitude: 0.95, agcGain: 1}
	if cfg.MaxAmplitude != nil {
		f.maxAmplitude = float64(clampF(*cfg.MaxAmplitude, 0.1, 1))
	}
	if cfg.Adaptive != nil {
		f.adaptive = *cfg.Adaptive
	}
	return f
}

func (f *Normalization) Process(samples []int16) {
	limit := f.maxAmplitude * 32768.0

	if f.adaptive {
		// Per-frame peak drives a slow AGC toward the target amplitude.
		var peak float64
		for _, s := range samples {
			if a := math.Abs(float64(s)); a > peak {
				peak = a
			}
		}
		if peak > 1 {
			target := limit / peak
			if target > 4 {
				target = 4
			}
			f.agcGain += (target - f.agcGain) * 0.05
		}
		for i, s := range samples {
			samples[i] = clampSample(float64(s) * f.agcGain)
		}
	}

	for i, s := range samples {
		v := float64(s)
		if v > limit {
			v = limit
		} else if v < -limit {
			v = -limit
		}
		samples[i] = int16(v)
	}
}

func (f *Normalization) IsEnabled() bool { return f.maxAmplitude < 0.999 || f.adaptive }

func (f *Normalization) Reset() { f.agcGain = 1 }
