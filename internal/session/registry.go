// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/internal/sources"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// Registry is the shared session table keyed by session id. Sessions
// detach into a resumable state when their socket drops and are destroyed
// when the resume window expires.
type Registry struct {
	logger  commons.Logger
	cfg     *config.AppConfig
	sources *sources.Manager
	planner routeplanner.Planner

	mu       sync.Mutex
	sessions map[string]*Session
	// pending resume timers, keyed by session id
	timers map[string]*time.Timer
}

func NewRegistry(logger commons.Logger, cfg *config.AppConfig, srcs *sources.Manager, planner routeplanner.Planner) *Registry {
	return &Registry{
		logger:   logger,
		cfg:      cfg,
		sources:  srcs,
		planner:  planner,
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
	}
}

// Create registers a fresh session with a short random id.
func (r *Registry) Create(userID uint64) *Session {
	id := uuid.NewString()[:16]
	s := newSession(r.logger, r.cfg, id, userID, r.sources, r.planner)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Get looks a session up.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// All snapshots every live session.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Detach handles a dropped socket: resumable sessions pause and start
// their expiry timer, others are destroyed outright.
func (r *Registry) Detach(s *Session) {
	if !s.Resuming {
		r.Remove(s.ID)
		return
	}

	s.Pause()
	timeout := time.Duration(s.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(r.cfg.Server.SessionResumeTimeout) * time.Second
	}
	r.logger.Infof("session %s detached, resumable for %s", s.ID, timeout)

	r.mu.Lock()
	if t, ok := r.timers[s.ID]; ok {
		t.Stop()
	}
	r.timers[s.ID] = time.AfterFunc(timeout, func() {
		r.logger.Infof("session %s resume window expired, destroying players", s.ID)
		r.Remove(s.ID)
	})
	r.mu.Unlock()
}

// Resume reattaches a paused session: the expiry timer is cancelled and
// queued events flow to the new socket.
func (r *Registry) Resume(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		if t, tok := r.timers[id]; tok {
			t.Stop()
			delete(r.timers, id)
		}
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.Resume()
	return s, true
}

// Remove destroys a session and all its players.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	if t, tok := r.timers[id]; tok {
		t.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}
