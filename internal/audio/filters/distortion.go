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

// Distortion applies the Lavalink trigonometric waveshaper:
// out = x · (offset + scale · (sinOffset + sin(x·sinScale))
//                          · (cosOffset + cos(x·cosScale))
//                          · (tanOffset + tan(x·tanScale))).
type Distortion struct {
	sinOffset, sinScale float64
	cosOffset, cosScale float64
	tanOffset, tanScale float64
	offset, scale       float64
}

func NewDistortion(cfg *protocol.DistortionConfig) *Distortion {
	f := &Distortion{sinScale: 1, cosScale: 1, tanScale: 1, scale: 1}
	set := func(dst *float64, v *float32) {
		if v != nil {
			*dst = float64(*v)
		}
	}
	set(&f.sinOffset, cfg.SinOffset)
	set(&f.sinScale, cfg.SinScale)
	set(&f.cosOffset, cfg.CosOffset)
	set(&f.cosScale, cfg.CosScale)
	set(&f.tanOffset, cfg.TanOffset)
	set(&f.tanScale, cfg.TanScale)
	set(&f.offset, cfg.Offset)
	set(&f.scale, cfg.Scale)
	return f
}

func (f *Distortion) Process(samples []int16) {
	for i, s := range samples {
		x := float64(s) / 32768.0

		sin := f.sinOffset + math.Sin(x*f.sinScale)
		cos := f.cosOffset + math.Cos(x*f.cosScale)
		tan := f.tanOffset + math.Tan(x*f.tanScale)

		y := x * (f.offset + f.scale*sin*cos*tan)
		samples[i] = clampSample(y * 32768.0)
	}
}

func (f *Distortion) IsEnabled() bool {
	return f.sinOffset != 0 || f.sinScale != 1 ||
		f.cosOffset != 0 || f.cosScale != 1 ||
		f.tanOffset != 0 || f.tanScale != 1 ||
		f.offset != 0 || f.scale != 1
}

func (f *Distortion) Reset() {}
