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

// The 15 fixed Lavalink equalizer band centre frequencies.
var eqBandFrequencies = [15]float64{
	25, 40, 63, 100, 160, 250, 400, 630, 1000,
	1600, 2500, 4000, 6300, 10000, 16000,
}

const eqBandQ = 1.0

// Equalizer is a bank of peaking biquads, one per non-zero band, applied
// per channel.
type Equalizer struct {
	bands []eqBand
}

type eqBand struct {
	coeffs biquadCoeffs
	state  [2]biquadState
	gain   float32
}

func NewEqualizer(bands []protocol.EqBand) *Equalizer {
	eq := &Equalizer{}
	for _, b := range bands {
		if int(b.Band) >= len(eqBandFrequencies) {
			continue
		}
		gain := clampF(b.Gain, -0.25, 1.0)
		if gain == 0 {
			continue
		}
		// Lavalink band gain is a linear factor around 0; map to dB.
		gainDB := float64(gain) * 12
		eq.bands = append(eq.bands, eqBand{
			coeffs: makePeaking(eqBandFrequencies[b.Band], eqBandQ, gainDB, pcm.SampleRate),
			gain:   gain,
		})
	}
	return eq
}

func (f *Equalizer) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])
		for bi := range f.bands {
			b := &f.bands[bi]
			l = b.state[0].process(b.coeffs, l)
			r = b.state[1].process(b.coeffs, r)
		}
		samples[i] = clampSample(l)
		samples[i+1] = clampSample(r)
	}
}

func (f *Equalizer) IsEnabled() bool { return len(f.bands) > 0 }

func (f *Equalizer) Reset() {
	for i := range f.bands {
		f.bands[i].state[0].reset()
		f.bands[i].state[1].reset()
	}
}
