// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package voice drives one player's connection to a Discord voice server:
// the WebSocket state machine (identify/resume, hello, ready, session
// description, DAVE ops), heartbeats, UDP IP discovery and the lifecycle
// of the speak loop.
package voice

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/wavelink/internal/audio/mixer"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/pkg/commons"
)

const maxReconnectAttempts = 5

// EventSink receives gateway-originated player events (WebSocketClosed).
type EventSink func(protocol.Event)

// Config identifies the voice session to connect.
type Config struct {
	GuildID   string
	UserID    uint64
	ChannelID uint64 // 0 when unknown; gates DAVE advertising
	SessionID string
	Token     string
	Endpoint  string

	// Speak loop knobs.
	OpusBitrate int
	IdleFrames  int
}

// Gateway owns one guild's voice connection. Created per voice-update;
// cancelled through the context handed to Run.
type Gateway struct {
	logger commons.Logger
	cfg    Config

	mixer        *mixer.Guarded
	ping         *atomic.Int64
	framesSent   *atomic.Uint64
	framesNulled *atomic.Uint64
	events       EventSink
}

func NewGateway(
	logger commons.Logger,
	cfg Config,
	mix *mixer.Guarded,
	ping *atomic.Int64,
	framesSent, framesNulled *atomic.Uint64,
	events EventSink,
) *Gateway {
	return &Gateway{
		logger:       logger.With("guild", cfg.GuildID),
		cfg:          cfg,
		mixer:        mix,
		ping:         ping,
		framesSent:   framesSent,
		framesNulled: framesNulled,
		events:       events,
	}
}

// Run connects and reconnects until the context is cancelled, the server
// closes fatally, or the attempt budget is spent. Backoff is
// 1s × 2^min(attempt−1, 3).
func (g *Gateway) Run(ctx context.Context) error {
	attempt := 0
	isResume := false
	seqAck := &atomic.Int64{}
	seqAck.Store(-1)

	for {
		if ctx.Err() != nil {
			return nil
		}

		result, err := g.connect(ctx, isResume, seqAck)
		if err != nil {
			attempt++
			if attempt > maxReconnectAttempts {
				g.logger.Errorf("voice gateway: connection error after %d attempts: %v", maxReconnectAttempts, err)
				return err
			}
			backoff := reconnectBackoff(attempt)
			g.logger.Warnf("voice gateway connection error (attempt %d/%d): %v, retrying in %s",
				attempt, maxReconnectAttempts, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			isResume = false
			continue
		}

		switch result {
		case outcomeShutdown:
			g.logger.Debug("voice gateway shutting down cleanly")
			return nil
		case outcomeReconnect:
			attempt++
			if attempt > maxReconnectAttempts {
				g.logger.Warnf("voice gateway: max reconnect attempts (%d) reached", maxReconnectAttempts)
				return nil
			}
			backoff := reconnectBackoff(attempt)
			g.logger.Debugf("voice gateway reconnecting (attempt %d/%d) in %s", attempt, maxReconnectAttempts, backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			isResume = true
		case outcomeIdentify:
			attempt++
			if attempt > maxReconnectAttempts {
				g.logger.Warnf("voice gateway: max re-identify attempts (%d) reached", maxReconnectAttempts)
				return nil
			}
			isResume = false
			seqAck.Store(-1)
			g.logger.Debug("voice gateway session invalid, identifying fresh")
			if !sleepCtx(ctx, 500*time.Millisecond) {
				return nil
			}
		}
	}
}

func reconnectBackoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 3 {
		shift = 3
	}
	return time.Second * time.Duration(1<<shift)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// connect runs one WebSocket session to completion.
func (g *Gateway) connect(ctx context.Context, isResume bool, seqAck *atomic.Int64) (outcome, error) {
	url := fmt.Sprintf("wss://%s/?v=8", g.cfg.Endpoint)
	g.logger.Debugf("connecting to voice gateway: %s", url)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return outcomeReconnect, fmt.Errorf("voice ws dial: %w", err)
	}
	defer conn.Close()

	// Per-connection context cancels the heartbeat, speak loop and write
	// pump when the read loop exits; closing the socket on cancellation
	// unblocks the blocking read below.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	// Single writer goroutine preserves frame ordering.
	writeCh := make(chan preparedFrame, 64)
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case frame := <-writeCh:
				if err := conn.WriteMessage(frame.messageType, frame.data); err != nil {
					g.logger.Warnf("voice ws write error (expected during reconnect): %v", err)
					return
				}
			}
		}
	}()

	state, err := newSessionState(g, connCtx, writeCh, seqAck)
	if err != nil {
		return outcomeReconnect, err
	}
	defer state.close()

	if isResume {
		state.sendJSON(OpResume, map[string]any{
			"server_id":  g.cfg.GuildID,
			"session_id": g.cfg.SessionID,
			"token":      g.cfg.Token,
			"seq_ack":    seqAck.Load(),
		})
	} else {
		// DAVE is advertised only when the channel is known; this is the
		// version-pinning behaviour clients depend on.
		maxDave := 0
		if g.cfg.ChannelID > 0 {
			maxDave = 1
		}
		state.sendJSON(OpIdentify, map[string]any{
			"server_id":                 g.cfg.GuildID,
			"user_id":                   fmt.Sprintf("%d", g.cfg.UserID),
			"session_id":                g.cfg.SessionID,
			"token":                     g.cfg.Token,
			"max_dave_protocol_version": maxDave,
		})
	}

	for {
		if ctx.Err() != nil {
			return outcomeShutdown, nil
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return outcomeShutdown, nil
			}
			if closeErr, ok := err.(*websocket.CloseError); ok {
				return g.handleClose(closeErr.Code, closeErr.Text), nil
			}
			g.logger.Warnf("voice ws read error: %v, reconnecting", err)
			g.emitClosed(1006, fmt.Sprintf("io error: %v", err), true)
			return outcomeReconnect, nil
		}

		switch messageType {
		case websocket.TextMessage:
			if result := state.handleText(data); result != nil {
				return *result, nil
			}
		case websocket.BinaryMessage:
			state.handleBinary(data)
		}
	}
}

func (g *Gateway) handleClose(code int, reason string) outcome {
	g.logger.Infof("voice ws closed: code=%d reason=%q", code, reason)
	g.emitClosed(code, reason, true)

	switch {
	case isReconnectableClose(code):
		return outcomeReconnect
	case isReidentifyClose(code):
		return outcomeIdentify
	case isFatalClose(code):
		g.logger.Warnf("voice gateway closed fatally with code %d", code)
		return outcomeShutdown
	default:
		return outcomeReconnect
	}
}

func (g *Gateway) emitClosed(code int, reason string, byRemote bool) {
	if g.events == nil {
		return
	}
	g.events(protocol.Event{
		Type:     protocol.EventWebSocketClosed,
		GuildID:  g.cfg.GuildID,
		Code:     code,
		CloseMsg: reason,
		ByRemote: byRemote,
	})
}

type preparedFrame struct {
	messageType int
	data        []byte
}
