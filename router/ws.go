// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The password check already ran in the auth middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// websocket attaches a bot client: a fresh session, or a resumed one when
// the Session-Id header names a resumable session.
func (a *API) websocket(c *gin.Context) {
	userIDHeader := c.GetHeader("User-Id")
	userID, err := strconv.ParseUint(userIDHeader, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", "missing or invalid User-Id header", c.Request.URL.Path))
		return
	}

	resumed := false
	var s *session.Session
	if resumeID := c.GetHeader("Session-Id"); resumeID != "" {
		if prev, ok := a.registry.Resume(resumeID); ok {
			s = prev
			resumed = true
			a.logger.Infof("session %s resumed by new connection", resumeID)
		}
	}
	if s == nil {
		s = a.registry.Create(userID)
		a.logger.Infof("session %s created for user %d", s.ID, userID)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warnf("websocket upgrade failed: %v", err)
		if !resumed {
			a.registry.Remove(s.ID)
		}
		return
	}

	s.Send(protocol.Ready{Op: protocol.OpReady, Resumed: resumed, SessionID: s.ID})
	go a.pump(conn, s)
}

// pump is one connection's lifetime: an ordered writer draining the
// session queue, periodic stats and pings, and a reader that exists only
// to notice the close.
func (a *API) pump(conn *websocket.Conn, s *session.Session) {
	stop := make(chan struct{})

	// Reader: the v4 control channel is REST-driven; inbound frames are
	// only pongs and closes.
	go func() {
		defer close(stop)
		conn.SetPongHandler(func(string) error { return nil })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	statsTicker := time.NewTicker(time.Duration(a.cfg.Server.StatsInterval) * time.Second)
	pingTicker := time.NewTicker(time.Duration(a.cfg.Server.WebsocketPingInterval) * time.Second)
	defer statsTicker.Stop()
	defer pingTicker.Stop()

	frames := make(chan [][]byte)
	go func() {
		for {
			batch := s.NextFrames(stop)
			if batch == nil {
				close(frames)
				return
			}
			select {
			case frames <- batch:
			case <-stop:
				return
			}
		}
	}()

	defer func() {
		_ = conn.Close()
		a.registry.Detach(s)
	}()

	for {
		select {
		case <-stop:
			return
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-statsTicker.C:
			s.Send(a.stats.Collect(s))
		case batch, ok := <-frames:
			if !ok {
				return
			}
			for _, frame := range batch {
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}
}
