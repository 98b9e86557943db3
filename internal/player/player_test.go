// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/pkg/commons"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{PlayerUpdateInterval: 5},
		Player: config.PlayerConfig{
			BufferDurationMs: 400,
			OpusBitrate:      96000,
			IdleFrames:       10,
			Tape:             config.TapeConfig{TapeStopDurationMs: 250, Curve: "linear"},
		},
	}
}

func newTestPlayer(emit Emitter) *Player {
	if emit == nil {
		emit = func(protocol.Event) {}
	}
	return New(commons.NewNopLogger(), testConfig(), "guild-1", 1234, emit, nil, routeplanner.Disabled{})
}

func TestVolumeClamping(t *testing.T) {
	p := newTestPlayer(nil)

	tests := []struct {
		set  int
		want int
	}{
		{100, 100},
		{0, 0},
		{1000, 1000},
		{1500, 1000},
		{-5, 0},
	}
	for _, tt := range tests {
		p.SetVolume(tt.set)
		assert.Equal(t, tt.want, p.Volume())
	}
}

func TestSnapshotDefaults(t *testing.T) {
	p := newTestPlayer(nil)
	snap := p.Snapshot()

	assert.Equal(t, "guild-1", snap.GuildID)
	assert.Nil(t, snap.Track)
	assert.Equal(t, 100, snap.Volume)
	assert.False(t, snap.Paused)
	assert.False(t, snap.State.Connected)
	assert.Equal(t, int64(-1), snap.State.Ping)
	assert.Zero(t, snap.State.Position)
}

func TestSetFiltersMerges(t *testing.T) {
	p := newTestPlayer(nil)
	vol := float32(0.5)
	freq := float32(4)

	p.SetFilters(protocol.Filters{Volume: &vol})
	p.SetFilters(protocol.Filters{Tremolo: &protocol.TremoloConfig{Frequency: &freq}})

	f := p.Filters()
	require.NotNil(t, f.Volume)
	require.NotNil(t, f.Tremolo)
	assert.True(t, p.chain.IsActive())
}

func TestDestroyEmitsCleanupOnlyWithTrack(t *testing.T) {
	var events []protocol.Event
	p := newTestPlayer(func(e protocol.Event) { events = append(events, e) })

	// No track: destroy is silent.
	p.Destroy()
	assert.Empty(t, events)

	// Destroy is idempotent.
	p.Destroy()
	assert.Empty(t, events)
}

func TestDestroyWithTrackEmitsCleanup(t *testing.T) {
	var events []protocol.Event
	p := newTestPlayer(func(e protocol.Event) { events = append(events, e) })

	track := protocol.NewTrack(protocol.TrackInfo{
		Identifier: "id", Title: "t", Author: "a", SourceName: "http",
	})
	p.mu.Lock()
	p.track = &track
	p.mu.Unlock()

	p.Destroy()
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventTrackEnd, events[0].Type)
	assert.Equal(t, protocol.TrackEndCleanup, events[0].Reason)
	assert.Equal(t, "guild-1", events[0].GuildID)
}

func TestSetPausedWithoutTrackIsStateOnly(t *testing.T) {
	p := newTestPlayer(nil)
	p.SetPaused(true)
	assert.True(t, p.Snapshot().Paused)
	p.SetPaused(false)
	assert.False(t, p.Snapshot().Paused)
}

func TestApplyVoiceIgnoresIncomplete(t *testing.T) {
	p := newTestPlayer(nil)
	// Missing endpoint/token: no gateway task must start.
	p.ApplyVoice(protocol.VoiceState{SessionID: "abc"})
	assert.False(t, p.Connected())
}
