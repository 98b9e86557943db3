// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package mixer

import (
	"math"
	"sync/atomic"
)

// PlaybackState is the per-track lifecycle, stored in an atomic so the
// mix tick, control surface and gateway read it without locks.
type PlaybackState uint32

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
	// StateStopping and StateStarting are transitional: a tape ramp runs,
	// then the mixer commits Paused or Playing.
	StateStopping
	StateStarting
)

func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStarting:
		return "starting"
	default:
		return "stopped"
	}
}

// StateCell wraps the atomic for typed access.
type StateCell struct {
	v atomic.Uint32
}

func NewStateCell(s PlaybackState) *StateCell {
	c := &StateCell{}
	c.v.Store(uint32(s))
	return c
}

func (c *StateCell) Load() PlaybackState     { return PlaybackState(c.v.Load()) }
func (c *StateCell) Store(s PlaybackState)   { c.v.Store(uint32(s)) }
func (c *StateCell) CompareAndSwap(old, new PlaybackState) bool {
	return c.v.CompareAndSwap(uint32(old), uint32(new))
}

// VolumeCell stores a float32 multiplier as atomic bits, Lavalink volume
// 0–1000 mapped to 0.0–10.0.
type VolumeCell struct {
	bits atomic.Uint32
}

func NewVolumeCell(mult float32) *VolumeCell {
	c := &VolumeCell{}
	c.Set(mult)
	return c
}

func (c *VolumeCell) Set(mult float32) {
	if mult < 0 {
		mult = 0
	}
	if mult > 10 {
		mult = 10
	}
	c.bits.Store(math.Float32bits(mult))
}

func (c *VolumeCell) Get() float32 { return math.Float32frombits(c.bits.Load()) }
