// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import "github.com/rapidaai/wavelink/internal/protocol"

// Reverb is a small Schroeder reverberator: four parallel damped combs
// into two series all-pass diffusers, per channel.
type Reverb struct {
	mix      float64
	roomSize float64
	damping  float64
	width    float64

	combs   [2][4]combFilter
	allpass [2][2]allpassFilter
}

// Classic comb/all-pass tunings, in 48 kHz sample counts.
var combTunings = [4]int{1557, 1617, 1491, 1422}
var allpassTunings = [2]int{225, 556}

type combFilter struct {
	buf      []float64
	pos      int
	feedback float64
	damp     float64
	store    float64
}

func (c *combFilter) process(x float64) float64 {
	out := c.buf[c.pos]
	c.store = out*(1-c.damp) + c.store*c.damp
	c.buf[c.pos] = x + c.store*c.feedback
	c.pos = (c.pos + 1) % len(c.buf)
	return out
}

type allpassFilter struct {
	buf []float64
	pos int
}

func (a *allpassFilter) process(x float64) float64 {
	buffered := a.buf[a.pos]
	a.buf[a.pos] = x + buffered*0.5
	a.pos = (a.pos + 1) % len(a.buf)
	return buffered - x
}

func NewReverb(cfg *protocol.ReverbConfig) *Reverb {
	f := &Reverb{mix: 0.3, roomSize: 0.6, damping: 0.4, width: 1}
	if cfg.Mix != nil {
		f.mix = float64(clamp01(*cfg.Mix))
	}
	if cfg.RoomSize != nil {
		f.roomSize = float64(clamp01(*cfg.RoomSize))
	}
	if cfg.Damping != nil {
		f.damping = float64(clamp01(*cfg.Damping))
	}
	if cfg.Width != nil {
		f.width = float64(clamp01(*cfg.Width))
	}

	feedback := 0.7 + f.roomSize*0.28
	for ch := 0; ch < 2; ch++ {
		// The right channel is detuned slightly for width.
		spread := ch * 23
		for i := range f.combs[ch] {
			f.combs[ch][i] = combFilter{
				buf:      make([]float64, combTunings[i]+spread),
				feedback: feedback,
				damp:     f.damping,
			}
		}
		for i := range f.allpass[ch] {
			f.allpass[ch][i] = allpassFilter{
				buf: make([]float64, allpassTunings[i]+spread),
			}
		}
	}
	return f
}

func (f *Reverb) Process(samples []int16) {
	for i := 0; i < len(samples); i += 2 {
		in := [2]float64{float64(samples[i]), float64(samples[i+1])}
		var wet [2]float64

		for ch := 0; ch < 2; ch++ {
			x := in[ch] * 0.2
			for c := range f.combs[ch] {
				wet[ch] += f.combs[ch][c].process(x)
			}
			for a := range f.allpass[ch] {
				wet[ch] = f.allpass[ch][a].process(wet[ch])
			}
		}

		// Width crossfeeds the wet channels.
		wetL := wet[0]*(1+f.width)/2 + wet[1]*(1-f.width)/2
		wetR := wet[1]*(1+f.width)/2 + wet[0]*(1-f.width)/2

		samples[i] = clampSample(in[0]*(1-f.mix) + wetL*f.mix)
		samples[i+1] = clampSample(in[1]*(1-f.mix) + wetR*f.mix)
	}
}

func (f *Reverb) IsEnabled() bool { return f.mix > 0.001 }

func (f *Reverb) Reset() {
	for ch := 0; ch < 2; ch++ {
		for i := range f.combs[ch] {
			c := &f.combs[ch][i]
			for j := range c.buf {
				c.buf[j] = 0
			}
			c.pos, c.store = 0, 0
		}
		for i := range f.allpass[ch] {
			a := &f.allpass[ch][i]
			for j := range a.buf {
				a.buf[j] = 0
			}
			a.pos = 0
		}
	}
}
