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

const (
	phonoMaxDelayMs = 60.0
	phonoBufferSize = int(pcm.SampleRate * phonoMaxDelayMs / 1000)
	phonoRNGSeed    = 0x1a2b3c4d
)

// xorshift32 is a tiny deterministic noise source; seeding it identically
// after every seek keeps crackle output reproducible.
type xorshift32 struct {
	s uint32
}

func (x *xorshift32) nextU32() uint32 {
	v := x.s
	v ^= v << 13
	v ^= v >> 17
	v ^= v << 5
	x.s = v
	return v
}

func (x *xorshift32) next01() float64 {
	return float64(x.nextU32()) / 4294967296.0
}

func (x *xorshift32) next11() float64 {
	return x.next01()*2 - 1
}

// nextNoise approximates gaussian noise from three uniform draws.
func (x *xorshift32) nextNoise() float64 {
	return (x.next11() + x.next11() + x.next11()) / 3
}

// Phonograph emulates a worn record player: wow/flutter pitch drift, drive
// saturation, a narrow band EQ voicing, hiss/tick/scratch noise, a small
// room and a microphone-style AGC. Output is mono on both channels.
type Phonograph struct {
	frequency float64
	depth     float64
	crackle   float64
	flutter   float64
	room      float64
	micAGC    float64
	drive     float64

	wowLFO     lfo
	flutterLFO lfo
	drift      float64
	delay      delayLine

	hp1, hp2, lp1, lp2 biquadState
	peak1, peak2       biquadState
	hissHP, hissLP     biquadState

	hp1C, hp2C, lp1C, lp2C biquadCoeffs
	peak1C, peak2C         biquadCoeffs
	hissHPC, hissLPC       biquadCoeffs

	r1, r2, r3 delayLine
	roomDamp   float64

	tickEnv    float64
	tickAmp    float64
	scratchEnv float64
	scratchAmp float64
	env        float64
	agcGain    float64

	rng xorshift32
}

func NewPhonograph(cfg *protocol.PhonographConfig) *Phonograph {
	f := &Phonograph{
		frequency: 0.8, depth: 0.25, crackle: 0.18, flutter: 0.18,
		room: 0.22, micAGC: 0.25, drive: 0.25,
		delay:   newDelayLine(phonoBufferSize),
		r1:      newDelayLine(pcm.SampleRate * 3 / 100),
		r2:      newDelayLine(pcm.SampleRate * 3 / 100),
		r3:      newDelayLine(pcm.SampleRate * 3 / 100),
		agcGain: 1,
		rng:     xorshift32{s: phonoRNGSeed},
	}

	const fs = float64(pcm.SampleRate)
	q := math.Sqrt2 / 2
	f.hp1C = makeHighPass(260, q, fs)
	f.hp2C = makeHighPass(260, q, fs)
	f.lp1C = makeLowPass(3300, q, fs)
	f.lp2C = makeLowPass(3300, q, fs)
	f.peak1C = makePeaking(950, 1.1, 7, fs)
	f.peak2C = makePeaking(2400, 1.6, 3.5, fs)
	f.hissHPC = makeHighPass(1800, q, fs)
	f.hissLPC = makeLowPass(6500, q, fs)

	if cfg.Frequency != nil {
		f.frequency = float64(*cfg.Frequency)
	}
	if cfg.Depth != nil {
		f.depth = float64(clamp01(*cfg.Depth))
	}
	if cfg.Crackle != nil {
		f.crackle = float64(clamp01(*cfg.Crackle))
	}
	if cfg.Flutter != nil {
		f.flutter = float64(clamp01(*cfg.Flutter))
	}
	if cfg.Room != nil {
		f.room = float64(clamp01(*cfg.Room))
	}
	if cfg.MicAgc != nil {
		f.micAGC = float64(clamp01(*cfg.MicAgc))
	}
	if cfg.Drive != nil {
		f.drive = float64(clamp01(*cfg.Drive))
	}

	f.wowLFO = newLFO(f.frequency, 1)
	f.flutterLFO = newLFO(7.5, 1)
	return f
}

func softClip(x float64) float64 {
	x2 := x * x
	return (x * (27 + x2)) / (27 + 9*x2)
}

func (f *Phonograph) Process(samples []int16) {
	const fs = float64(pcm.SampleRate)
	wowMax := f.depth * 0.014 * fs
	flutterMax := f.flutter * 0.0022 * fs
	center := 1 + wowMax + flutterMax
	driftAmount := f.depth * 0.0012 * fs
	const driftSmooth = 0.00015
	hissGain := 0.01 * f.crackle
	tickRate := 0.00002 * f.crackle
	scratchRate := 0.0000025 * f.crackle
	d1 := 7.5 / 1000 * fs
	d2 := 12.0 / 1000 * fs
	d3 := 17.5 / 1000 * fs
	roomMix := 0.35 * f.room
	agcOn := f.micAGC > 0
	const target = 0.22
	atk := 0.006 + 0.01*f.micAGC
	rel := 0.0006 + 0.0012*f.micAGC

	for i := 0; i < len(samples); i += 2 {
		// Mono from the start, like the hardware being imitated.
		x := (float64(samples[i]) + float64(samples[i+1])) * 0.5 / 32768.0

		dNoise := f.rng.nextNoise()
		f.drift += (dNoise*driftAmount - f.drift) * driftSmooth
		wow := f.wowLFO.next()
		flt := f.flutterLFO.next()
		dly := center + wow*wowMax + flt*flutterMax + f.drift
		if dly < 1 {
			dly = 1
		}
		if dly > float64(phonoBufferSize)-2 {
			dly = float64(phonoBufferSize) - 2
		}

		f.delay.push(x)
		x = f.delay.readAt(dly)

		if f.drive > 0 {
			g := 1 + f.drive*6
			x = softClip(x*g) / softClip(g)
		}

		x = f.hp1.process(f.hp1C, x)
		x = f.hp2.process(f.hp2C, x)
		x = f.lp1.process(f.lp1C, x)
		x = f.lp2.process(f.lp2C, x)
		x = f.peak1.process(f.peak1C, x)
		x = f.peak2.process(f.peak2C, x)

		if f.crackle > 0 {
			n := f.rng.nextNoise()
			n = f.hissHP.process(f.hissHPC, n)
			n = f.hissLP.process(f.hissLPC, n)
			x += n * hissGain

			if f.rng.next01() < tickRate {
				f.tickEnv = 1
				f.tickAmp = f.rng.next11() * (0.45 + f.crackle)
			}
			f.tickEnv *= 0.965
			x += f.tickAmp * f.tickEnv * 0.18

			if f.rng.next01() < scratchRate {
				f.scratchEnv = 1
				f.scratchAmp = f.rng.next11() * (0.35 + f.crackle)
			}
			f.scratchEnv *= 0.992
			x += f.scratchAmp * f.scratchEnv * 0.06
		}

		if f.room > 0 {
			f.roomDamp += 0.08 * (x - f.roomDamp)
			f.r1.push(f.roomDamp)
			f.r2.push(f.roomDamp)
			f.r3.push(f.roomDamp)

			a := f.r1.readAt(d1)
			b := f.r2.readAt(d2)
			c := f.r3.readAt(d3)
			x = x*(1-roomMix) + (a+b+c)*(roomMix/3)
		}

		if agcOn {
			ax := math.Abs(x)
			coeff := rel
			if ax > f.env {
				coeff = atk
			}
			f.env += (ax - f.env) * coeff
			desired := target / (f.env + 1e-6)
			f.agcGain += (desired - f.agcGain) * 0.0015
			g := f.agcGain
			if g < 0.35 {
				g = 0.35
			} else if g > 2.8 {
				g = 2.8
			}
			x *= g
		}

		out := clampSample(x * 32768.0)
		samples[i] = out
		samples[i+1] = out
	}
}

func (f *Phonograph) IsEnabled() bool {
	return f.depth > 0 || f.crackle > 0 || f.flutter > 0 || f.room > 0 || f.drive > 0
}

func (f *Phonograph) Reset() {
	f.delay.reset()
	f.r1.reset()
	f.r2.reset()
	f.r3.reset()
	f.wowLFO.reset()
	f.flutterLFO.reset()
	f.drift = 0

	f.hp1.reset()
	f.hp2.reset()
	f.lp1.reset()
	f.lp2.reset()
	f.peak1.reset()
	f.peak2.reset()
	f.hissHP.reset()
	f.hissLP.reset()

	f.tickEnv, f.tickAmp = 0, 0
	f.scratchEnv, f.scratchAmp = 0, 0
	f.roomDamp = 0
	f.env = 0
	f.agcGain = 1
	// Reseeding makes post-seek output deterministic.
	f.rng = xorshift32{s: phonoRNGSeed}
}
