// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package mixer

import "github.com/rapidaai/wavelink/internal/audio/pcm"

// MaxLayers caps the overlay set per player.
const MaxLayers = 4

// Layer is one named auxiliary PCM stream overlaid onto the main mix
// (sound effects, secondary tracks).
type Layer struct {
	ID     string
	Volume float32

	rx       <-chan *pcm.Buffer
	pending  []int16
	detached bool
}

func newLayer(id string, rx <-chan *pcm.Buffer, volume float32) *Layer {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	return &Layer{ID: id, Volume: volume, rx: rx}
}

// fill tops up the pending buffer without blocking the mix tick.
func (l *Layer) fill() {
	for len(l.pending) < pcm.FrameLen {
		select {
		case buf, ok := <-l.rx:
			if !ok {
				l.detached = true
				return
			}
			l.pending = append(l.pending, buf.Samples...)
			buf.Release()
		default:
			return
		}
	}
}

// isDead reports the layer can never produce audio again.
func (l *Layer) isDead() bool {
	return l.detached && len(l.pending) == 0
}

// accumulate mixes up to len(acc) samples into the i32 scratch.
func (l *Layer) accumulate(acc []int32) {
	n := len(l.pending)
	if n > len(acc) {
		n = len(acc)
	}
	vol := float64(l.Volume)
	for i := 0; i < n; i++ {
		acc[i] += int32(float64(l.pending[i]) * vol)
	}
	l.pending = l.pending[:copy(l.pending, l.pending[n:])]
}
