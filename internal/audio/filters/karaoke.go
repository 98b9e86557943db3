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

// Karaoke suppresses centre-panned vocals: the mono component is
// band-passed around the vocal range and subtracted from both channels.
type Karaoke struct {
	level       float32
	monoLevel   float32
	filterBand  float32
	filterWidth float32

	coeffs biquadCoeffs
	state  biquadState
}

func NewKaraoke(cfg *protocol.KaraokeConfig) *Karaoke {
	f := &Karaoke{level: 1, monoLevel: 1, filterBand: 220, filterWidth: 100}
	if cfg.Level != nil {
		f.level = clamp01(*cfg.Level)
	}
	if cfg.MonoLevel != nil {
		f.monoLevel = clamp01(*cfg.MonoLevel)
	}
	if cfg.FilterBand != nil {
		f.filterBand = *cfg.FilterBand
	}
	if cfg.FilterWidth != nil {
		f.filterWidth = *cfg.FilterWidth
	}

	q := float64(f.filterBand) / float64(f.filterWidth)
	if q < 0.1 {
		q = 0.1
	}
	f.coeffs = makeBandPass(float64(f.filterBand), q, pcm.SampleRate)
	return f
}

func (f *Karaoke) Process(samples []int16) {
	level := float64(f.level)
	monoLevel := float64(f.monoLevel)

	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		mono := (l + r) / 2
		vocal := f.state.process(f.coeffs, mono) * monoLevel

		samples[i] = clampSample(l - vocal*level)
		samples[i+1] = clampSample(r - vocal*level)
	}
}

func (f *Karaoke) IsEnabled() bool { return f.level > 0.001 }

func (f *Karaoke) Reset() { f.state.reset() }
