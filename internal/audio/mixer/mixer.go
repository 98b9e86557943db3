// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package mixer pulls 20 ms frames per track through the filter chain,
// applies tape ramps and volume, overlays auxiliary layers and emits one
// interleaved stereo frame per tick for the speak loop.
package mixer

import (
	"errors"
	"sync/atomic"

	"github.com/rapidaai/wavelink/internal/audio/filters"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
)

// TapeSettings parameterise the pause/resume ramps for all tracks of a
// player.
type TapeSettings struct {
	StopDurationMs float64
	Curve          TapeCurve
}

// Mixer is the per-player mixing core. Not safe for concurrent use; the
// owning player guards it with a mutex, contended only by the speak loop
// and short add/remove calls.
type Mixer struct {
	tracks []*track
	mixBuf []int32
	tape   TapeSettings

	layers      map[string]*Layer
	layersOn    bool
	passthrough *passthroughTrack
}

type track struct {
	rx       <-chan *pcm.Buffer
	chain    *filters.Holder
	tape     Tape
	state    *StateCell
	volume   *VolumeCell
	position *atomic.Uint64

	pending    []int16
	pendingPos int
	scratch    []int16
	finished   bool
}

type passthroughTrack struct {
	rx       <-chan []byte
	state    *StateCell
	position *atomic.Uint64
}

func New(tape TapeSettings) *Mixer {
	return &Mixer{
		mixBuf:   make([]int32, pcm.FrameLen),
		tape:     tape,
		layers:   make(map[string]*Layer),
		layersOn: true,
	}
}

// AddTrack registers a decoded-PCM track. The channel is owned by the
// decoder; its close signals end of stream.
func (m *Mixer) AddTrack(rx <-chan *pcm.Buffer, chain *filters.Holder, state *StateCell, volume *VolumeCell, position *atomic.Uint64) {
	m.tracks = append(m.tracks, &track{
		rx:       rx,
		chain:    chain,
		state:    state,
		volume:   volume,
		position: position,
	})
}

// AddPassthroughTrack registers a raw-Opus track; at most one exists.
func (m *Mixer) AddPassthroughTrack(rx <-chan []byte, state *StateCell, position *atomic.Uint64) {
	m.passthrough = &passthroughTrack{rx: rx, state: state, position: position}
}

// TakeOpusFrame hands one container-level Opus packet to the speak loop,
// bypassing mixing entirely. Nil when paused, transitioning, or starved.
func (m *Mixer) TakeOpusFrame() []byte {
	pt := m.passthrough
	if pt == nil {
		return nil
	}
	switch pt.state.Load() {
	case StatePaused, StateStopped, StateStopping, StateStarting:
		return nil
	}
	select {
	case frame, ok := <-pt.rx:
		if !ok {
			m.passthrough = nil
			if pt.state.Load() != StateStopped {
				pt.state.Store(StateStopped)
			}
			return nil
		}
		pt.position.Add(pcm.FrameSamples)
		return frame
	default:
		return nil
	}
}

// HasPassthrough reports whether a raw-Opus track is registered.
func (m *Mixer) HasPassthrough() bool { return m.passthrough != nil }

// StopAll marks every track stopped and clears the overlay set.
func (m *Mixer) StopAll() {
	for _, t := range m.tracks {
		t.state.Store(StateStopped)
	}
	m.tracks = m.tracks[:0]
	if m.passthrough != nil {
		m.passthrough.state.Store(StateStopped)
		m.passthrough = nil
	}
	m.layersOn = false
}

// AddLayer attaches a named overlay stream.
func (m *Mixer) AddLayer(id string, rx <-chan *pcm.Buffer, volume float32) error {
	if len(m.layers) >= MaxLayers {
		return errors.New("maximum mix layers reached")
	}
	m.layers[id] = newLayer(id, rx, volume)
	m.layersOn = true
	return nil
}

func (m *Mixer) RemoveLayer(id string) { delete(m.layers, id) }

func (m *Mixer) SetLayerVolume(id string, volume float32) {
	if l, ok := m.layers[id]; ok {
		if volume < 0 {
			volume = 0
		}
		if volume > 1 {
			volume = 1
		}
		l.Volume = volume
	}
}

// Mix produces exactly one 1920-sample frame into buf. Returns whether
// any track or layer contributed audio; silence otherwise.
func (m *Mixer) Mix(buf []int16) bool {
	out := len(buf)
	if len(m.mixBuf) != out {
		m.mixBuf = make([]int32, out)
	}
	for i := range m.mixBuf {
		m.mixBuf[i] = 0
	}

	// Drop tracks that stopped since the last tick.
	live := m.tracks[:0]
	for _, t := range m.tracks {
		if t.state.Load() != StateStopped {
			live = append(live, t)
		}
	}
	m.tracks = live

	hasAudio := false

	for _, t := range m.tracks {
		state := t.state.Load()
		if state == StatePaused || state == StateStopped {
			continue
		}

		// Arm tape ramps for transitional states.
		if state == StateStopping && !t.tape.IsRamping() {
			t.tape.RampTo(m.tape.StopDurationMs, "stop", m.tape.Curve)
		} else if state == StateStarting && !t.tape.IsRamping() {
			t.tape.RampTo(m.tape.StopDurationMs, "start", m.tape.Curve)
		}

		filled := t.fill(out)
		if filled > 0 {
			slice := t.scratch[:filled]
			t.tape.Process(slice)
			vol := float64(t.volume.Get())
			for j := 0; j < filled; j++ {
				m.mixBuf[j] += int32(float64(slice[j]) * vol)
			}
			hasAudio = true
			t.position.Add(uint64(filled) / pcm.Channels)
		}

		if t.finished && t.pendingPos >= len(t.pending) && !t.tape.IsActive() {
			t.state.Store(StateStopped)
		}

		if t.tape.CheckCompleted() {
			switch state {
			case StateStopping:
				t.state.Store(StatePaused)
			case StateStarting:
				t.state.Store(StatePlaying)
			}
		}
	}

	for i, s := range m.mixBuf {
		buf[i] = clampI32(s)
	}

	// Overlay layers on top of the clamped main mix.
	if m.layersOn && len(m.layers) > 0 {
		acc := m.mixBuf
		for i, s := range buf {
			acc[i] = int32(s)
		}
		for id, l := range m.layers {
			l.fill()
			if l.isDead() {
				delete(m.layers, id)
				continue
			}
			l.accumulate(acc)
		}
		for i, s := range acc {
			buf[i] = clampI32(s)
		}
		if len(m.layers) > 0 {
			hasAudio = true
		}
	}

	return hasAudio
}

func clampI32(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
