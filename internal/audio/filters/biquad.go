// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import "math"

// biquadCoeffs are normalised direct-form-I coefficients (a0 divided out).
type biquadCoeffs struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// biquadState is one channel's filter history.
type biquadState struct {
	x1, x2 float64
	y1, y2 float64
}

func (s *biquadState) process(c biquadCoeffs, x float64) float64 {
	y := c.b0*x + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
	s.x2, s.x1 = s.x1, x
	s.y2, s.y1 = s.y1, y
	return y
}

func (s *biquadState) reset() {
	*s = biquadState{}
}

func makeLowPass(fc, q, fs float64) biquadCoeffs {
	w0 := 2 * math.Pi * (fc / fs)
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)
	a0 := 1 + alpha
	return biquadCoeffs{
		b0: ((1 - cosW0) / 2) / a0,
		b1: (1 - cosW0) / a0,
		b2: ((1 - cosW0) / 2) / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
}

func makeHighPass(fc, q, fs float64) biquadCoeffs {
	w0 := 2 * math.Pi * (fc / fs)
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)
	a0 := 1 + alpha
	return biquadCoeffs{
		b0: ((1 + cosW0) / 2) / a0,
		b1: (-(1 + cosW0)) / a0,
		b2: ((1 + cosW0) / 2) / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
}

func makeBandPass(fc, q, fs float64) biquadCoeffs {
	w0 := 2 * math.Pi * (fc / fs)
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)
	a0 := 1 + alpha
	return biquadCoeffs{
		b0: alpha / a0,
		b1: 0,
		b2: -alpha / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
}

func makePeaking(fc, q, gainDB, fs float64) biquadCoeffs {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * (fc / fs)
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)
	a0 := 1 + alpha/a
	return biquadCoeffs{
		b0: (1 + alpha*a) / a0,
		b1: (-2 * cosW0) / a0,
		b2: (1 - alpha*a) / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha/a) / a0,
	}
}

func makeAllPass(fc, q, fs float64) biquadCoeffs {
	w0 := 2 * math.Pi * (fc / fs)
	cosW0, sinW0 := math.Cos(w0), math.Sin(w0)
	alpha := sinW0 / (2 * q)
	a0 := 1 + alpha
	return biquadCoeffs{
		b0: (1 - alpha) / a0,
		b1: (-2 * cosW0) / a0,
		b2: (1 + alpha) / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
}

func clampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
