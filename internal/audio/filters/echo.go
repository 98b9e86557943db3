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

// Echo feeds back a delayed copy of the signal.
type Echo struct {
	echoLength float64 // seconds
	decay      float64
	delayL     delayLine
	delayR     delayLine
	delaySmp   float64
}

const echoMaxSeconds = 5

func NewEcho(cfg *protocol.EchoConfig) *Echo {
	f := &Echo{echoLength: 1, decay: 0.5}
	if cfg.EchoLength != nil && *cfg.EchoLength > 0 {
		f.echoLength = float64(clampF(*cfg.EchoLength, 0, echoMaxSeconds))
	}
	if cfg.Decay != nil {
		f.decay = float64(clamp01(*cfg.Decay))
	}
	f.delaySmp = f.echoLength * pcm.SampleRate
	cap := int(f.delaySmp) + 2
	f.delayL = newDelayLine(cap)
	f.delayR = newDelayLine(cap)
	return f
}

func (f *Echo) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		outL := l + f.delayL.readAt(f.delaySmp)*f.decay
		outR := r + f.delayR.readAt(f.delaySmp)*f.decay

		// Feed the wet signal back so echoes repeat and decay.
		f.delayL.push(outL)
		f.delayR.push(outR)

		samples[i] = clampSample(outL)
		samples[i+1] = clampSample(outR)
	}
}

func (f *Echo) IsEnabled() bool { return f.decay > 0.001 && f.echoLength > 0.001 }

func (f *Echo) Reset() {
	f.delayL.reset()
	f.delayR.reset()
}
