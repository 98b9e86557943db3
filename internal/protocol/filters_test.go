// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f32(v float32) *float32 { return &v }

func TestFiltersIsAllNone(t *testing.T) {
	var f Filters
	assert.True(t, f.IsAllNone())

	f.Volume = f32(0.5)
	assert.False(t, f.IsAllNone())
}

func TestFiltersMerge(t *testing.T) {
	base := Filters{
		Volume:  f32(0.5),
		Tremolo: &TremoloConfig{Frequency: f32(4)},
	}
	base.Merge(Filters{
		Volume:  f32(0.8),
		Karaoke: &KaraokeConfig{Level: f32(1)},
	})

	assert.Equal(t, float32(0.8), *base.Volume)
	// Untouched keys survive the merge.
	assert.NotNil(t, base.Tremolo)
	assert.NotNil(t, base.Karaoke)
}

func TestFiltersDisallowed(t *testing.T) {
	enabled := map[string]bool{}
	for _, name := range FilterNames() {
		enabled[name] = true
	}
	enabled["timescale"] = false
	enabled["phonograph"] = false

	f := Filters{
		Volume:     f32(0.5),
		Timescale:  &TimescaleConfig{},
		Phonograph: &PhonographConfig{},
	}
	assert.ElementsMatch(t, []string{"timescale", "phonograph"}, f.Disallowed(enabled))

	clean := Filters{Volume: f32(0.5)}
	assert.Empty(t, clean.Disallowed(enabled))
}

func TestFilterNamesComplete(t *testing.T) {
	assert.Len(t, FilterNames(), 20)
}
