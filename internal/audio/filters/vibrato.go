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

// Vibrato modulates pitch by reading a delay line at an oscillating offset.
type Vibrato struct {
	frequency float32
	depth     float32
	osc       lfo
	delayL    delayLine
	delayR    delayLine
}

// Maximum vibrato excursion, samples.
const vibratoMaxDelay = pcm.SampleRate * 5 / 1000 // 5 ms

func NewVibrato(cfg *protocol.VibratoConfig) *Vibrato {
	f := &Vibrato{frequency: 2, depth: 0.5}
	if cfg.Frequency != nil && *cfg.Frequency > 0 {
		f.frequency = clampF(*cfg.Frequency, 0, 14)
	}
	if cfg.Depth != nil {
		f.depth = clamp01(*cfg.Depth)
	}
	f.osc = newLFO(float64(f.frequency), float64(f.depth))
	f.delayL = newDelayLine(vibratoMaxDelay * 2)
	f.delayR = newDelayLine(vibratoMaxDelay * 2)
	return f
}

func (f *Vibrato) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		f.delayL.push(float64(samples[i]))
		f.delayR.push(float64(samples[i+1]))

		delay := (f.osc.nextUnipolar() + 0.0001) * vibratoMaxDelay
		samples[i] = clampSample(f.delayL.readAt(delay))
		samples[i+1] = clampSample(f.delayR.readAt(delay))
	}
}

func (f *Vibrato) IsEnabled() bool { return f.depth > 0.001 }

func (f *Vibrato) Reset() {
	f.osc.reset()
	f.delayL.reset()
	f.delayR.reset()
}
