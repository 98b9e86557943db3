// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package mixer

import (
	"github.com/rapidaai/wavelink/internal/audio/filters"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
)

// fill assembles up to `out` processed samples into t.scratch:
// pending overflow from the previous tick first, then fresh chunks pulled
// non-blockingly from the decoder and run through the filter chain.
// Returns the number of samples produced.
func (t *track) fill(out int) int {
	if cap(t.scratch) < out {
		t.scratch = make([]int16, out)
	}
	slice := t.scratch[:out]
	filled := 0

	// 1. Drain overflow from the previous tick.
	if t.pendingPos < len(t.pending) {
		n := copy(slice, t.pending[t.pendingPos:])
		t.pendingPos += n
		filled += n
		if t.pendingPos >= len(t.pending) {
			t.pending = t.pending[:0]
			t.pendingPos = 0
		}
	}

	if filled >= out || t.finished {
		return filled
	}

	// 2. Pull fresh chunks through the chain.
	t.chain.WithChain(func(c *filters.Chain) {
		if c.HasTimescale() {
			for filled < out {
				if c.FillFrame(slice[filled:]) {
					filled = out
					return
				}
				chunk, ok := t.tryRecv()
				if !ok {
					return
				}
				c.Process(chunk.Samples)
				chunk.Release()
			}
			return
		}

		for filled < out && !t.finished {
			chunk, ok := t.tryRecv()
			if !ok {
				return
			}
			c.Process(chunk.Samples)
			n := copy(slice[filled:], chunk.Samples)
			if n < len(chunk.Samples) {
				t.pending = append(t.pending, chunk.Samples[n:]...)
				t.pendingPos = 0
			}
			filled += n
			chunk.Release()
		}
	})

	return filled
}

// tryRecv pulls one decoded chunk without blocking the mix tick. A closed
// channel marks the track finished.
func (t *track) tryRecv() (*pcm.Buffer, bool) {
	select {
	case chunk, ok := <-t.rx:
		if !ok {
			t.finished = true
			return nil, false
		}
		return chunk, true
	default:
		return nil, false
	}
}
