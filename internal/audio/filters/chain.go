// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package filters implements the in-place DSP chain applied per 20 ms
// frame, plus the length-changing timescale stage.
//
// Buffer layout everywhere: interleaved stereo [L, R, L, R, ...],
// 960 frames × 2 channels = 1920 samples per 20 ms at 48 kHz.
package filters

import (
	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/protocol"
)

// Filter is one in-place stage. Implementations never change the buffer
// length; the timescale stage is handled separately for that reason.
type Filter interface {
	// Process mutates samples in place.
	Process(samples []int16)
	// IsEnabled reports whether the configured parameters have any
	// audible effect; disabled filters are excluded at build time.
	IsEnabled() bool
	// Reset clears internal state (on seek or parameter change).
	Reset()
}

// Timescale output buffered beyond this is dropped to bound memory.
const maxTimescaleSamples = pcm.FrameLen * 64

// Chain is an ordered sequence of enabled filters plus an optional
// timescale stage whose output feeds an internal residual buffer.
type Chain struct {
	filters   []Filter
	timescale *Timescale
	residual  []int16
}

// NewChain builds a chain from the wire config, keeping only filters whose
// parameters make them audible. Order matches the reference node: volume
// first, tonal filters, then modulation/space effects.
func NewChain(cfg *protocol.Filters) *Chain {
	c := &Chain{}
	if cfg == nil {
		return c
	}

	add := func(f Filter) {
		if f.IsEnabled() {
			c.filters = append(c.filters, f)
		}
	}

	if cfg.Volume != nil {
		add(NewVolume(*cfg.Volume))
	}
	if cfg.Equalizer != nil {
		add(NewEqualizer(cfg.Equalizer))
	}
	if cfg.Karaoke != nil {
		add(NewKaraoke(cfg.Karaoke))
	}
	if cfg.HighPass != nil {
		add(NewHighPass(cfg.HighPass))
	}
	if cfg.LowPass != nil {
		add(NewLowPass(cfg.LowPass))
	}
	if cfg.Tremolo != nil {
		add(NewTremolo(cfg.Tremolo))
	}
	if cfg.Vibrato != nil {
		add(NewVibrato(cfg.Vibrato))
	}
	if cfg.Rotation != nil {
		add(NewRotation(cfg.Rotation))
	}
	if cfg.Distortion != nil {
		add(NewDistortion(cfg.Distortion))
	}
	if cfg.ChannelMix != nil {
		add(NewChannelMix(cfg.ChannelMix))
	}
	if cfg.Echo != nil {
		add(NewEcho(cfg.Echo))
	}
	if cfg.Chorus != nil {
		add(NewChorus(cfg.Chorus))
	}
	if cfg.Flanger != nil {
		add(NewFlanger(cfg.Flanger))
	}
	if cfg.Phaser != nil {
		add(NewPhaser(cfg.Phaser))
	}
	if cfg.Phonograph != nil {
		add(NewPhonograph(cfg.Phonograph))
	}
	if cfg.Reverb != nil {
		add(NewReverb(cfg.Reverb))
	}
	if cfg.Compressor != nil {
		add(NewCompressor(cfg.Compressor))
	}
	if cfg.Normalization != nil {
		add(NewNormalization(cfg.Normalization))
	}
	if cfg.Spatial != nil {
		add(NewSpatial(cfg.Spatial))
	}

	if cfg.Timescale != nil {
		ts := NewTimescale(cfg.Timescale)
		if ts.IsEnabled() {
			c.timescale = ts
		}
	}
	return c
}

// IsActive reports whether any stage survived construction.
func (c *Chain) IsActive() bool {
	return len(c.filters) > 0 || c.timescale != nil
}

// HasTimescale reports whether frames must be pulled through FillFrame.
func (c *Chain) HasTimescale() bool {
	return c.timescale != nil
}

// Process runs every in-place filter over samples. When timescale is
// active its output is appended to the residual buffer instead of mutating
// samples; callers then drain via FillFrame.
func (c *Chain) Process(samples []int16) {
	for _, f := range c.filters {
		f.Process(samples)
	}
	if c.timescale != nil {
		c.residual = c.timescale.Resample(samples, c.residual)
		if excess := len(c.residual) - maxTimescaleSamples; excess > 0 {
			c.residual = c.residual[excess:]
		}
	}
}

// FillFrame drains exactly len(out) samples from the residual buffer.
// Returns false when timescale is inactive (use the in-place buffer) or
// when not enough output has accumulated yet.
func (c *Chain) FillFrame(out []int16) bool {
	if c.timescale == nil {
		return false
	}
	if len(c.residual) < len(out) {
		return false
	}
	copy(out, c.residual[:len(out)])
	c.residual = c.residual[:copy(c.residual, c.residual[len(out):])]
	return true
}

// Reset clears all per-filter state: LFO phases, delay lines, biquad
// histories, envelopes, RNG. Called on seek.
func (c *Chain) Reset() {
	for _, f := range c.filters {
		f.Reset()
	}
	if c.timescale != nil {
		c.timescale.Reset()
	}
	c.residual = c.residual[:0]
}
