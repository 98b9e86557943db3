// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package pcm owns the shared PCM frame constants and the pooled buffer
// allocator used on the 20 ms hot path.
package pcm

import "sync"

const (
	// SampleRate is the only output rate this node produces.
	SampleRate = 48000
	// Channels is interleaved stereo.
	Channels = 2
	// FrameSamples is 20 ms per channel at 48 kHz.
	FrameSamples = 960
	// FrameLen is the interleaved sample count of one frame.
	FrameLen = FrameSamples * Channels
	// FrameBytes is FrameLen as 16-bit PCM.
	FrameBytes = FrameLen * 2
	// FrameDurationMs is the mix tick.
	FrameDurationMs = 20
)

// Buffer is a pooled slice of interleaved i16 samples. Length varies per
// decode chunk; capacity is at least one frame.
type Buffer struct {
	Samples []int16
	pool    *Pool
}

// Release returns the buffer to its pool. The buffer must not be used
// afterwards.
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.put(b)
	}
}

// Pool hands out PCM buffers without per-frame allocation. Process-wide:
// initialise once at startup with Init and fetch with Get.
type Pool struct {
	inner sync.Pool
}

var (
	global     *Pool
	globalOnce sync.Once
)

// Init creates the process-wide pool. Safe to call more than once; only
// the first call takes effect.
func Init() {
	globalOnce.Do(func() {
		global = NewPool()
	})
}

// Get returns the process-wide pool, initialising it on first use so unit
// tests need no bootstrap.
func Get() *Pool {
	Init()
	return global
}

// NewPool builds an isolated pool (tests).
func NewPool() *Pool {
	p := &Pool{}
	p.inner.New = func() any {
		return &Buffer{Samples: make([]int16, 0, FrameLen*4), pool: p}
	}
	return p
}

// Acquire hands out an empty buffer ready for appends.
func (p *Pool) Acquire() *Buffer {
	b := p.inner.Get().(*Buffer)
	b.Samples = b.Samples[:0]
	b.pool = p
	return b
}

func (p *Pool) put(b *Buffer) {
	// Oversized one-off buffers are dropped so a single long decode chunk
	// does not pin memory for the process lifetime.
	if cap(b.Samples) > FrameLen*64 {
		return
	}
	p.inner.Put(b)
}
