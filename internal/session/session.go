// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package session owns the per-client state: guild players, the ordered
// outbound event queue, and the resumable-session window that survives a
// dropped control WebSocket.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/player"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/internal/sources"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// Session is one control-WS client with its guild players. Event order is
// preserved by serialising all emission through one queue.
type Session struct {
	ID     string
	UserID uint64

	logger  commons.Logger
	cfg     *config.AppConfig
	sources *sources.Manager
	planner routeplanner.Planner

	mu      sync.Mutex
	players map[string]*player.Player

	// Outbound queue: marshalled frames in emission order. While the
	// session is detached-but-resumable the queue buffers (bounded,
	// oldest dropped); while attached the pump drains it to the socket.
	queue   [][]byte
	notify  chan struct{}
	paused  bool // detached, awaiting resume
	closed  bool

	// Resuming configuration (PATCH /v4/sessions/{id}).
	Resuming   bool
	TimeoutSec int

	updateCancel chan struct{}

	// Historical frame counters folded in when players are destroyed.
	TotalSentHistorical   atomic.Uint64
	TotalNulledHistorical atomic.Uint64
	LastStatsSent         atomic.Uint64
	LastStatsNulled       atomic.Uint64
}

func newSession(logger commons.Logger, cfg *config.AppConfig, id string, userID uint64, srcs *sources.Manager, planner routeplanner.Planner) *Session {
	s := &Session{
		ID:           id,
		UserID:       userID,
		logger:       logger.With("session", id),
		cfg:          cfg,
		sources:      srcs,
		planner:      planner,
		players:      make(map[string]*player.Player),
		notify:       make(chan struct{}, 1),
		TimeoutSec:   cfg.Server.SessionResumeTimeout,
		updateCancel: make(chan struct{}),
	}
	go s.playerUpdateLoop()
	return s
}

// Player returns the guild's player, creating it on demand.
func (s *Session) Player(guildID string) *player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[guildID]; ok {
		return p
	}
	p := player.New(s.logger, s.cfg, guildID, s.UserID, s.Emit, s.sources, s.planner)
	s.players[guildID] = p
	return p
}

// ExistingPlayer returns the player without creating one.
func (s *Session) ExistingPlayer(guildID string) (*player.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[guildID]
	return p, ok
}

// Players snapshots the player list.
func (s *Session) Players() []*player.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*player.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out
}

// DestroyPlayer removes and tears down one guild player.
func (s *Session) DestroyPlayer(guildID string) bool {
	s.mu.Lock()
	p, ok := s.players[guildID]
	delete(s.players, guildID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sent, nulled := p.FrameCounters()
	s.TotalSentHistorical.Add(sent)
	s.TotalNulledHistorical.Add(nulled)
	p.Destroy()
	return true
}

// Emit marshals and enqueues one event, preserving order.
func (s *Session) Emit(evt protocol.Event) {
	data, err := protocol.MarshalWS(evt)
	if err != nil {
		s.logger.Warnf("failed to marshal event: %v", err)
		return
	}
	s.push(data)
}

// Send marshals and enqueues an arbitrary outbound op.
func (s *Session) Send(msg any) {
	data, err := protocol.MarshalWS(msg)
	if err != nil {
		s.logger.Warnf("failed to marshal message: %v", err)
		return
	}
	s.push(data)
}

func (s *Session) push(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, frame)
	// A detached resumable session keeps a bounded backlog only.
	if max := s.cfg.Server.MaxEventQueueSize; len(s.queue) > max {
		drop := len(s.queue) - max
		s.queue = s.queue[drop:]
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// NextFrames blocks until frames are queued (or the session closes) and
// returns them in order. The WS pump calls this; a paused session never
// hands frames out.
func (s *Session) NextFrames(stop <-chan struct{}) [][]byte {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil
		}
		if !s.paused && len(s.queue) > 0 {
			frames := s.queue
			s.queue = nil
			s.mu.Unlock()
			return frames
		}
		s.mu.Unlock()

		select {
		case <-stop:
			return nil
		case <-s.notify:
		}
	}
}

// Pause marks the session detached: event emission is gated but state
// stays alive for the resume window.
func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume reattaches; queued events flow again.
func (s *Session) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close destroys all players and ends the update loop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	players := make([]*player.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	s.players = make(map[string]*player.Player)
	s.mu.Unlock()

	close(s.updateCancel)
	for _, p := range players {
		p.Destroy()
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// playerUpdateLoop emits the periodic playerUpdate op for every player.
func (s *Session) playerUpdateLoop() {
	interval := time.Duration(s.cfg.Server.PlayerUpdateInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.updateCancel:
			return
		case <-ticker.C:
			for _, p := range s.Players() {
				s.Send(protocol.PlayerUpdateMessage{
					Op:      protocol.OpPlayerUpdate,
					GuildID: p.GuildID(),
					State:   p.StateSnapshot(),
				})
			}
		}
	}
}
