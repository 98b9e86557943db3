// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

// Volume scales every sample by a constant multiplier.
type Volume struct {
	gain float32
}

func NewVolume(gain float32) *Volume {
	return &Volume{gain: clampF(gain, 0, 5)}
}

func (f *Volume) Process(samples []int16) {
	for i, s := range samples {
		samples[i] = clampSample(float64(s) * float64(f.gain))
	}
}

func (f *Volume) IsEnabled() bool {
	return f.gain < 0.999 || f.gain > 1.001
}

func (f *Volume) Reset() {}
