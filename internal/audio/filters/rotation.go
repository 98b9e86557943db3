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

// Rotation pans audio between channels, the classic "8D" effect.
type Rotation struct {
	rotationHz float64
	phase      float64
	increment  float64
}

func NewRotation(cfg *protocol.RotationConfig) *Rotation {
	f := &Rotation{}
	if cfg.RotationHz != nil {
		f.rotationHz = *cfg.RotationHz
	}
	f.increment = 2 * math.Pi * f.rotationHz / float64(pcm.SampleRate)
	return f
}

func (f *Rotation) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		x := math.Sin(f.phase)
		f.phase += f.increment
		if f.phase >= 2*math.Pi {
			f.phase -= 2 * math.Pi
		}

		l := float64(samples[i])
		r := float64(samples[i+1])
		samples[i] = clampSample(l * (1 + x) / 2)
		samples[i+1] = clampSample(r * (1 - x) / 2)
	}
}

func (f *Rotation) IsEnabled() bool { return f.rotationHz > 0.001 }

func (f *Rotation) Reset() { f.phase = 0 }
