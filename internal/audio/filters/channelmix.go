// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import "github.com/rapidaai/wavelink/internal/protocol"

// ChannelMix remixes stereo channels through a 2×2 matrix.
type ChannelMix struct {
	ll, lr, rl, rr float64
}

func NewChannelMix(cfg *protocol.ChannelMixConfig) *ChannelMix {
	f := &ChannelMix{ll: 1, rr: 1}
	if cfg.LeftToLeft != nil {
		f.ll = float64(clamp01(*cfg.LeftToLeft))
	}
	if cfg.LeftToRight != nil {
		f.lr = float64(clamp01(*cfg.LeftToRight))
	}
	if cfg.RightToLeft != nil {
		f.rl = float64(clamp01(*cfg.RightToLeft))
	}
	if cfg.RightToRight != nil {
		f.rr = float64(clamp01(*cfg.RightToRight))
	}
	return f
}

func (f *ChannelMix) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		l := float64(samples[i])
		r := float64(samples[i+1])
		samples[i] = clampSample(l*f.ll + r*f.rl)
		samples[i+1] = clampSample(l*f.lr + r*f.rr)
	}
}

func (f *ChannelMix) IsEnabled() bool {
	return f.ll != 1 || f.lr != 0 || f.rl != 0 || f.rr != 1
}

func (f *ChannelMix) Reset() {}
