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

// Compressor is a feed-forward peak compressor with attack/release
// smoothing on the gain envelope.
type Compressor struct {
	thresholdDB float64
	ratio       float64
	attackMs    float64
	releaseMs   float64
	makeupGain  float64

	attackCoef  float64
	releaseCoef float64
	envelopeDB  float64
}

func NewCompressor(cfg *protocol.CompressorConfig) *Compressor {
	f := &Compressor{thresholdDB: -18, ratio: 4, attackMs: 10, releaseMs: 150, makeupGain: 1}
	if cfg.Threshold != nil {
		f.thresholdDB = float64(clampF(*cfg.Threshold, -60, 0))
	}
	if cfg.Ratio != nil && *cfg.Ratio >= 1 {
		f.ratio = float64(*cfg.Ratio)
	}
	if cfg.Attack != nil && *cfg.Attack > 0 {
		f.attackMs = float64(*cfg.Attack)
	}
	if cfg.Release != nil && *cfg.Release > 0 {
		f.releaseMs = float64(*cfg.Release)
	}
	if cfg.MakeupGain != nil && *cfg.MakeupGain > 0 {
		f.makeupGain = float64(*cfg.MakeupGain)
	}
	f.attackCoef = math.Exp(-1 / (f.attackMs / 1000 * pcm.SampleRate))
	f.releaseCoef = math.Exp(-1 / (f.releaseMs / 1000 * pcm.SampleRate))
	return f
}

func (f *Compressor) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])

		peak := math.Max(math.Abs(l), math.Abs(r)) / 32768.0
		levelDB := -96.0
		if peak > 0 {
			levelDB = 20 * math.Log10(peak)
		}

		// Desired gain reduction above the threshold.
		overDB := levelDB - f.thresholdDB
		var targetDB float64
		if overDB > 0 {
			targetDB = overDB - overDB/f.ratio
		}

		// Smooth: fast toward more reduction, slow toward less.
		if targetDB > f.envelopeDB {
			f.envelopeDB = f.attackCoef*f.envelopeDB + (1-f.attackCoef)*targetDB
		} else {
			f.envelopeDB = f.releaseCoef*f.envelopeDB + (1-f.releaseCoef)*targetDB
		}

		gain := math.Pow(10, -f.envelopeDB/20) * f.makeupGain
		samples[i] = clampSample(l * gain)
		samples[i+1] = clampSample(r * gain)
	}
}

func (f *Compressor) IsEnabled() bool { return f.ratio > 1.001 }

func (f *Compressor) Reset() { f.envelopeDB = 0 }
