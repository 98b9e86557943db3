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

// Spatial widens the stereo image with slowly-modulated interaural delay
// and mid/side expansion.
type Spatial struct {
	depth float64
	rate  float64

	osc    lfo
	delayL delayLine
	delayR delayLine
}

const spatialMaxDelay = pcm.SampleRate * 2 / 1000 // 2 ms

func NewSpatial(cfg *protocol.SpatialConfig) *Spatial {
	f := &Spatial{depth: 0.5, rate: 0.2}
	if cfg.Depth != nil {
		f.depth = float64(clamp01(*cfg.Depth))
	}
	if cfg.Rate != nil && *cfg.Rate > 0 {
		f.rate = float64(*cfg.Rate)
	}
	f.osc = newLFO(f.rate, 1)
	f.delayL = newDelayLine(spatialMaxDelay * 2)
	f.delayR = newDelayLine(spatialMaxDelay * 2)
	return f
}

func (f *Spatial) Process(samples []int16) {
	widen := 1 + f.depth

	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		f.delayL.push(l)
		f.delayR.push(r)

		// Opposing micro-delays drift the image left and right.
		sweep := (f.osc.next() + 1) / 2 * f.depth * float64(spatialMaxDelay-1)
		dl := f.delayL.readAt(1 + sweep)
		dr := f.delayR.readAt(1 + float64(spatialMaxDelay-1)*f.depth - sweep)

		mid := (dl + dr) / 2
		side := (dl - dr) / 2 * widen

		samples[i] = clampSample(mid + side)
		samples[i+1] = clampSample(mid - side)
	}
}

func (f *Spatial) IsEnabled() bool { return f.depth > 0.001 }

func (f *Spatial) Reset() {
	f.osc.reset()
	f.delayL.reset()
	f.delayR.reset()
}
