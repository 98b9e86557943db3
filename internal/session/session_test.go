// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/pkg/commons"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Name:     "wavelink",
		Version:  "test",
		LogLevel: "error",
		Server: config.ServerConfig{
			Host:                  "127.0.0.1",
			Port:                  0,
			StatsInterval:         60,
			WebsocketPingInterval: 30,
			PlayerUpdateInterval:  5,
			SessionResumeTimeout:  1,
			MaxEventQueueSize:     8,
		},
		Player: config.PlayerConfig{
			BufferDurationMs: 400,
			OpusBitrate:      96000,
			IdleFrames:       10,
			Tape:             config.TapeConfig{TapeStopDurationMs: 250, Curve: "linear"},
		},
	}
}

func newTestRegistry(cfg *config.AppConfig) *Registry {
	return NewRegistry(commons.NewNopLogger(), cfg, nil, routeplanner.Disabled{})
}

func collectFrames(t *testing.T, s *Session, want int) [][]byte {
	t.Helper()
	stop := make(chan struct{})
	defer close(stop)

	var out [][]byte
	deadline := time.After(2 * time.Second)
	for len(out) < want {
		done := make(chan [][]byte, 1)
		go func() { done <- s.NextFrames(stop) }()
		select {
		case batch := <-done:
			out = append(out, batch...)
		case <-deadline:
			t.Fatalf("timed out collecting frames, have %d want %d", len(out), want)
		}
	}
	return out
}

func TestEmitPreservesOrder(t *testing.T) {
	r := newTestRegistry(testConfig())
	s := r.Create(42)
	defer r.Remove(s.ID)

	for i := 0; i < 5; i++ {
		s.Emit(protocol.Event{
			Type:    protocol.EventTrackStart,
			GuildID: fmt.Sprintf("guild-%d", i),
		})
	}

	frames := collectFrames(t, s, 5)
	for i, frame := range frames {
		assert.Contains(t, string(frame), fmt.Sprintf("guild-%d", i))
	}
}

func TestQueueBounded(t *testing.T) {
	cfg := testConfig()
	r := newTestRegistry(cfg)
	s := r.Create(42)
	defer r.Remove(s.ID)

	s.Pause() // detached: queue accumulates
	for i := 0; i < 20; i++ {
		s.Emit(protocol.Event{Type: protocol.EventTrackStart, GuildID: fmt.Sprintf("g%02d", i)})
	}

	s.mu.Lock()
	queued := len(s.queue)
	oldest := string(s.queue[0])
	s.mu.Unlock()

	assert.Equal(t, cfg.Server.MaxEventQueueSize, queued, "overflow drops oldest")
	assert.Contains(t, oldest, "g12")
}

func TestPauseGatesDelivery(t *testing.T) {
	r := newTestRegistry(testConfig())
	s := r.Create(42)
	defer r.Remove(s.ID)

	s.Pause()
	s.Emit(protocol.Event{Type: protocol.EventTrackStart, GuildID: "g"})

	stop := make(chan struct{})
	got := make(chan [][]byte, 1)
	go func() { got <- s.NextFrames(stop) }()

	select {
	case <-got:
		t.Fatal("paused session must not deliver frames")
	case <-time.After(100 * time.Millisecond):
	}

	s.Resume()
	select {
	case frames := <-got:
		require.Len(t, frames, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("resume must release queued frames")
	}
	close(stop)
}

func TestRegistryResume(t *testing.T) {
	r := newTestRegistry(testConfig())
	s := r.Create(42)
	s.Resuming = true

	r.Detach(s)

	resumed, ok := r.Resume(s.ID)
	require.True(t, ok)
	assert.Same(t, s, resumed)
	r.Remove(s.ID)
}

func TestDetachNonResumableDestroys(t *testing.T) {
	r := newTestRegistry(testConfig())
	s := r.Create(42)

	r.Detach(s)
	_, ok := r.Get(s.ID)
	assert.False(t, ok)
}

func TestResumeWindowExpiry(t *testing.T) {
	r := newTestRegistry(testConfig())
	s := r.Create(42)
	s.Resuming = true
	s.TimeoutSec = 1

	r.Detach(s)
	_, ok := r.Get(s.ID)
	require.True(t, ok, "session survives inside the window")

	assert.Eventually(t, func() bool {
		_, ok := r.Get(s.ID)
		return !ok
	}, 3*time.Second, 50*time.Millisecond, "expired session must be destroyed")
}

func TestPlayerLifecycle(t *testing.T) {
	r := newTestRegistry(testConfig())
	s := r.Create(42)
	defer r.Remove(s.ID)

	p := s.Player("123")
	assert.Same(t, p, s.Player("123"), "same guild returns the same player")

	_, ok := s.ExistingPlayer("999")
	assert.False(t, ok)

	assert.True(t, s.DestroyPlayer("123"))
	assert.False(t, s.DestroyPlayer("123"))

	// Destroy with an active-track-free player emits nothing; the queue
	// stays empty.
	s.mu.Lock()
	assert.Empty(t, s.queue)
	s.mu.Unlock()
}
