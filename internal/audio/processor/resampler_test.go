// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package processor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stereoSine(frames int, rate float64) []int16 {
	out := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
		out[i*2] = v
		out[i*2+1] = v
	}
	return out
}

func TestResamplerRatios(t *testing.T) {
	tests := []struct {
		name       string
		sourceRate int
		frames     int
	}{
		{"44100 to 48000", 44100, 4410},
		{"22050 to 48000", 22050, 2205},
		{"96000 to 48000", 96000, 9600},
		{"8000 to 48000", 8000, 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResampler(tt.sourceRate, 48000)
			src := stereoSine(tt.frames, float64(tt.sourceRate))

			// Feed in uneven chunks to exercise boundary carrying.
			var out []int16
			for off := 0; off < len(src); {
				n := 1234
				if off+n > len(src) {
					n = len(src) - off
				}
				n -= n % 2
				out = r.Process(src[off:off+n], out)
				off += n
			}

			// A fresh resampler starts on the first source frame and ends on
			// the last, so it yields (frames-1)·ratio+1 stereo frames.
			expected := (float64(tt.frames-1)*48000/float64(tt.sourceRate) + 1) * 2
			assert.InDelta(t, expected, float64(len(out)), 8,
				"output length should match the rate ratio")
			assert.Zero(t, len(out)%2, "output must stay interleaved stereo")
		})
	}
}

func TestResamplerPassthrough(t *testing.T) {
	r := NewResampler(48000, 48000)
	assert.True(t, r.Passthrough())
	src := stereoSine(960, 48000)
	out := r.Process(src, nil)
	assert.Equal(t, src, out)
}

func TestResamplerReset(t *testing.T) {
	r := NewResampler(44100, 48000)
	first := r.Process(stereoSine(441, 44100), nil)

	r.Reset()
	second := r.Process(stereoSine(441, 44100), nil)
	assert.Equal(t, first, second, "reset must restore initial state")
}

func TestToStereo(t *testing.T) {
	t.Run("mono duplicates", func(t *testing.T) {
		assert.Equal(t, []int16{5, 5, -3, -3}, toStereo([]int16{5, -3}, 1))
	})
	t.Run("stereo untouched", func(t *testing.T) {
		src := []int16{1, 2, 3, 4}
		assert.Equal(t, src, toStereo(src, 2))
	})
	t.Run("5.1 takes front pair", func(t *testing.T) {
		src := []int16{1, 2, 9, 9, 9, 9, 3, 4, 9, 9, 9, 9}
		assert.Equal(t, []int16{1, 2, 3, 4}, toStereo(src, 6))
	})
}
