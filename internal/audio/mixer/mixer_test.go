// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package mixer

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/internal/audio/filters"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
)

func testSettings() TapeSettings {
	return TapeSettings{StopDurationMs: 20, Curve: CurveLinear}
}

// queueFrames pushes n constant-value frames into a fresh track channel.
func queueFrames(n int, value int16) chan *pcm.Buffer {
	ch := make(chan *pcm.Buffer, n)
	for i := 0; i < n; i++ {
		buf := pcm.Get().Acquire()
		for j := 0; j < pcm.FrameLen; j++ {
			buf.Samples = append(buf.Samples, value)
		}
		ch <- buf
	}
	return ch
}

func newTestTrack(m *Mixer, ch chan *pcm.Buffer, state PlaybackState) (*StateCell, *atomic.Uint64) {
	cell := NewStateCell(state)
	pos := &atomic.Uint64{}
	m.AddTrack(ch, filters.NewHolder(), cell, NewVolumeCell(1), pos)
	return cell, pos
}

func TestMixSilenceWithoutTracks(t *testing.T) {
	m := New(testSettings())
	buf := make([]int16, pcm.FrameLen)
	assert.False(t, m.Mix(buf))
	for _, s := range buf {
		assert.Zero(t, s)
	}
}

func TestMixSingleTrack(t *testing.T) {
	m := New(testSettings())
	ch := queueFrames(3, 1000)
	_, pos := newTestTrack(m, ch, StatePlaying)

	buf := make([]int16, pcm.FrameLen)
	require.True(t, m.Mix(buf))
	assert.Equal(t, int16(1000), buf[0])
	assert.Equal(t, uint64(pcm.FrameSamples), pos.Load())
}

func TestMixAccumulatesAndClamps(t *testing.T) {
	m := New(testSettings())
	newTestTrack(m, queueFrames(1, 30000), StatePlaying)
	newTestTrack(m, queueFrames(1, 30000), StatePlaying)

	buf := make([]int16, pcm.FrameLen)
	require.True(t, m.Mix(buf))
	assert.Equal(t, int16(32767), buf[0], "sum must clamp, not wrap")
}

func TestMixSkipsPaused(t *testing.T) {
	m := New(testSettings())
	_, pos := newTestTrack(m, queueFrames(2, 1000), StatePaused)

	buf := make([]int16, pcm.FrameLen)
	assert.False(t, m.Mix(buf))
	assert.Zero(t, pos.Load())
	assert.Zero(t, buf[0])
}

func TestTapeStopTransitionsToPaused(t *testing.T) {
	m := New(testSettings()) // 20 ms ramp: completes within one tick
	cell, _ := newTestTrack(m, queueFrames(4, 1000), StateStopping)

	buf := make([]int16, pcm.FrameLen)
	m.Mix(buf)
	assert.Equal(t, StatePaused, cell.Load())

	// Ramp start is full gain, end is (near) silence.
	assert.Equal(t, int16(1000), buf[0])
	assert.InDelta(t, 0, buf[pcm.FrameLen-1], 2)
}

func TestTapeStartTransitionsToPlaying(t *testing.T) {
	m := New(testSettings())
	cell, _ := newTestTrack(m, queueFrames(4, 1000), StateStarting)

	buf := make([]int16, pcm.FrameLen)
	m.Mix(buf)
	assert.Equal(t, StatePlaying, cell.Load())
}

func TestTrackFinishes(t *testing.T) {
	m := New(testSettings())
	ch := queueFrames(1, 500)
	close(ch)
	cell, _ := newTestTrack(m, ch, StatePlaying)

	buf := make([]int16, pcm.FrameLen)
	require.True(t, m.Mix(buf))
	// Channel drained and closed: the next tick commits Stopped.
	m.Mix(buf)
	assert.Equal(t, StateStopped, cell.Load())
}

func TestStoppedTracksAreDropped(t *testing.T) {
	m := New(testSettings())
	cell, _ := newTestTrack(m, queueFrames(1, 500), StatePlaying)
	cell.Store(StateStopped)

	buf := make([]int16, pcm.FrameLen)
	assert.False(t, m.Mix(buf))
	assert.Empty(t, m.tracks)
}

func TestOverlayLayers(t *testing.T) {
	m := New(testSettings())

	layerCh := make(chan *pcm.Buffer, 1)
	buf := pcm.Get().Acquire()
	for j := 0; j < pcm.FrameLen; j++ {
		buf.Samples = append(buf.Samples, 2000)
	}
	layerCh <- buf
	require.NoError(t, m.AddLayer("sfx", layerCh, 0.5))

	out := make([]int16, pcm.FrameLen)
	assert.True(t, m.Mix(out))
	assert.Equal(t, int16(1000), out[0], "layer mixes at its own volume")
}

func TestLayerCap(t *testing.T) {
	m := New(testSettings())
	for i := 0; i < MaxLayers; i++ {
		require.NoError(t, m.AddLayer(string(rune('a'+i)), make(chan *pcm.Buffer), 1))
	}
	assert.Error(t, m.AddLayer("overflow", make(chan *pcm.Buffer), 1))
}

func TestDeadLayersEvicted(t *testing.T) {
	m := New(testSettings())
	ch := make(chan *pcm.Buffer)
	close(ch)
	require.NoError(t, m.AddLayer("dead", ch, 1))

	out := make([]int16, pcm.FrameLen)
	m.Mix(out)
	assert.Empty(t, m.layers)
}

func TestOpusPassthrough(t *testing.T) {
	m := New(testSettings())
	ch := make(chan []byte, 2)
	cell := NewStateCell(StatePlaying)
	pos := &atomic.Uint64{}
	m.AddPassthroughTrack(ch, cell, pos)

	ch <- []byte{0x01, 0x02}
	frame := m.TakeOpusFrame()
	require.NotNil(t, frame)
	assert.Equal(t, []byte{0x01, 0x02}, frame)
	assert.Equal(t, uint64(pcm.FrameSamples), pos.Load())

	// Starved channel yields nil without blocking.
	assert.Nil(t, m.TakeOpusFrame())

	// Paused passthrough yields nothing.
	cell.Store(StatePaused)
	ch <- []byte{0x03}
	assert.Nil(t, m.TakeOpusFrame())
}

func TestStopAll(t *testing.T) {
	m := New(testSettings())
	cell, _ := newTestTrack(m, queueFrames(1, 500), StatePlaying)
	m.StopAll()
	assert.Equal(t, StateStopped, cell.Load())
	assert.Empty(t, m.tracks)
}
