// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package voice

import (
	"context"
	"encoding/binary"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/voice/dave"
	"github.com/rapidaai/wavelink/internal/voice/speaker"
)

// sessionState is the per-connection half of the gateway: opcode
// dispatch, heartbeat ownership, UDP socket, DAVE handler and the speak
// loop it spawns once the session description arrives.
type sessionState struct {
	g       *Gateway
	ctx     context.Context
	writeCh chan<- preparedFrame
	seqAck  *atomic.Int64

	ssrc         uint32
	udpAddr      *net.UDPAddr
	selectedMode string
	udpConn      *net.UDPConn

	connectedUsers map[uint64]struct{}

	dave   *dave.Handler
	daveMu sync.Mutex

	heartbeatCancel context.CancelFunc
	lastHeartbeat   atomic.Int64

	speakCancel context.CancelFunc
}

func newSessionState(g *Gateway, ctx context.Context, writeCh chan<- preparedFrame, seqAck *atomic.Int64) (*sessionState, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	return &sessionState{
		g:              g,
		ctx:            ctx,
		writeCh:        writeCh,
		seqAck:         seqAck,
		selectedMode:   speaker.ModeXSalsa20Poly305,
		udpConn:        conn,
		connectedUsers: map[uint64]struct{}{g.cfg.UserID: {}},
		dave:           dave.NewHandler(g.logger, g.cfg.UserID, g.cfg.ChannelID),
	}, nil
}

func (s *sessionState) close() {
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	if s.speakCancel != nil {
		s.speakCancel()
	}
	_ = s.udpConn.Close()
}

// handleText dispatches one JSON frame; a non-nil result ends the
// connection with that outcome.
func (s *sessionState) handleText(data []byte) *outcome {
	var msg Message
	if err := protocol.UnmarshalWS(data, &msg); err != nil {
		s.g.logger.Warnf("failed to parse voice gateway message: %v", err)
		return nil
	}

	// The stored ack is a high-water mark; Discord's seq is monotonic
	// per connection but a CAS loop guards against reordered dispatch.
	if msg.Seq != nil {
		for {
			cur := s.seqAck.Load()
			if *msg.Seq <= cur || s.seqAck.CompareAndSwap(cur, *msg.Seq) {
				break
			}
		}
	}

	switch msg.Op {
	case OpHello:
		s.handleHello(msg.D)
	case OpReady:
		return s.handleReady(msg.D)
	case OpSessionDescription:
		return s.handleSessionDescription(msg.D)
	case OpHeartbeatAck:
		s.handleHeartbeatAck()
	case OpResumed:
		s.g.logger.Info("voice session resumed successfully")
	case OpClientConnect:
		s.handleUserConnect(msg.D)
	case OpClientDisconnect:
		s.handleUserDisconnect(msg.D)
	case OpPrepareTransition:
		s.handlePrepareTransition(msg.D)
	case OpExecuteTransition:
		s.handleExecuteTransition(msg.D)
	case OpPrepareEpoch:
		s.handlePrepareEpoch(msg.D)
	default:
		s.g.logger.Debugf("received voice op %d: %s", msg.Op, string(msg.D))
	}
	return nil
}

func (s *sessionState) handleHello(d []byte) {
	var hello struct {
		HeartbeatInterval float64 `json:"heartbeat_interval"`
	}
	_ = protocol.UnmarshalWS(d, &hello)
	interval := int64(hello.HeartbeatInterval)

	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	hbCtx, cancel := context.WithCancel(s.ctx)
	s.heartbeatCancel = cancel

	s.g.logger.Debugf("heartbeat interval set to %dms", interval)
	go runHeartbeat(hbCtx, s.sendJSON, s.seqAck, &s.lastHeartbeat, interval)
}

func (s *sessionState) handleReady(d []byte) *outcome {
	var ready struct {
		SSRC  uint32   `json:"ssrc"`
		IP    string   `json:"ip"`
		Port  uint16   `json:"port"`
		Modes []string `json:"modes"`
	}
	if err := protocol.UnmarshalWS(d, &ready); err != nil {
		s.g.logger.Warnf("malformed ready payload: %v", err)
		return outcomePtr(outcomeReconnect)
	}

	s.ssrc = ready.SSRC
	ip := net.ParseIP(ready.IP)
	if ip == nil {
		s.g.logger.Warnf("ready carried unparseable ip %q", ready.IP)
		return outcomePtr(outcomeReconnect)
	}
	s.udpAddr = &net.UDPAddr{IP: ip, Port: int(ready.Port)}
	s.selectedMode = speaker.SelectMode(ready.Modes)

	s.g.logger.Debugf("voice ready: ip=%s port=%d ssrc=%d mode=%s",
		ready.IP, ready.Port, s.ssrc, s.selectedMode)

	myIP, myPort, err := DiscoverIP(s.udpConn, s.udpAddr, s.ssrc)
	if err != nil {
		s.g.logger.Errorf("ip discovery failed: %v", err)
		return outcomePtr(outcomeReconnect)
	}

	s.sendJSON(OpSelectProtocol, map[string]any{
		"protocol": "udp",
		"data": map[string]any{
			"address": myIP,
			"port":    myPort,
			"mode":    s.selectedMode,
		},
	})
	return nil
}

func (s *sessionState) handleSessionDescription(d []byte) *outcome {
	var desc struct {
		Mode      string  `json:"mode"`
		SecretKey []uint8 `json:"secret_key"`
	}
	if err := protocol.UnmarshalWS(d, &desc); err != nil || len(desc.SecretKey) < 32 {
		s.g.logger.Error("missing or invalid secret_key in session description")
		return outcomePtr(outcomeReconnect)
	}
	if desc.Mode != "" {
		s.selectedMode = desc.Mode
	}

	var key [32]byte
	copy(key[:], desc.SecretKey[:32])

	if s.udpAddr != nil {
		s.g.logger.Debugf("starting speak loop with mode %s", s.selectedMode)

		if s.speakCancel != nil {
			s.speakCancel()
		}
		speakCtx, cancel := context.WithCancel(s.ctx)
		s.speakCancel = cancel

		loop, err := speaker.New(
			s.g.logger,
			speaker.Config{
				SSRC:       s.ssrc,
				SecretKey:  key,
				Mode:       s.selectedMode,
				Bitrate:    s.g.cfg.OpusBitrate,
				IdleFrames: s.g.cfg.IdleFrames,
			},
			s.g.mixer,
			s.dave,
			&s.daveMu,
			s.udpConn,
			s.udpAddr,
			s.g.framesSent,
			s.g.framesNulled,
		)
		if err != nil {
			s.g.logger.Errorf("speak loop init failed: %v", err)
			return outcomePtr(outcomeReconnect)
		}
		go loop.Run(speakCtx)

		s.sendJSON(OpSpeaking, map[string]any{"speaking": 1, "delay": 0, "ssrc": s.ssrc})
	}

	// DAVE handshake starts only when the channel is known.
	if s.g.cfg.ChannelID > 0 {
		s.daveMu.Lock()
		kp, err := s.dave.SetupSession(dave.InitialVersion)
		s.daveMu.Unlock()
		if err == nil {
			s.g.logger.Debug("sending dave key package (op 26)")
			s.sendBinary(OpDaveKeyPackage, kp)
		}
	}
	return nil
}

func (s *sessionState) handleHeartbeatAck() {
	sent := s.lastHeartbeat.Load()
	if sent > 0 {
		s.g.ping.Store(time.Now().UnixMilli() - sent)
	}
}

func (s *sessionState) handleUserConnect(d []byte) {
	var payload struct {
		UserIDs []string `json:"user_ids"`
	}
	_ = protocol.UnmarshalWS(d, &payload)
	for _, idStr := range payload.UserIDs {
		if id, err := strconv.ParseUint(idStr, 10, 64); err == nil {
			s.connectedUsers[id] = struct{}{}
		}
	}
}

func (s *sessionState) handleUserDisconnect(d []byte) {
	var payload struct {
		UserID string `json:"user_id"`
	}
	_ = protocol.UnmarshalWS(d, &payload)
	if id, err := strconv.ParseUint(payload.UserID, 10, 64); err == nil {
		delete(s.connectedUsers, id)
	}
}

func (s *sessionState) handlePrepareTransition(d []byte) {
	var payload struct {
		TransitionID    uint16 `json:"transition_id"`
		ProtocolVersion uint16 `json:"protocol_version"`
	}
	_ = protocol.UnmarshalWS(d, &payload)

	s.daveMu.Lock()
	ack := s.dave.PrepareTransition(payload.TransitionID, payload.ProtocolVersion)
	s.daveMu.Unlock()
	if ack {
		s.sendJSON(OpTransitionReady, map[string]any{"transition_id": payload.TransitionID})
	}
}

func (s *sessionState) handleExecuteTransition(d []byte) {
	var payload struct {
		TransitionID uint16 `json:"transition_id"`
	}
	_ = protocol.UnmarshalWS(d, &payload)
	s.daveMu.Lock()
	s.dave.ExecuteTransition(payload.TransitionID)
	s.daveMu.Unlock()
}

func (s *sessionState) handlePrepareEpoch(d []byte) {
	var payload struct {
		Epoch           uint64 `json:"epoch"`
		ProtocolVersion uint16 `json:"protocol_version"`
	}
	_ = protocol.UnmarshalWS(d, &payload)
	s.daveMu.Lock()
	s.dave.PrepareEpoch(payload.Epoch, payload.ProtocolVersion)
	s.daveMu.Unlock()
}

// handleBinary processes DAVE frames: [seq u16][op u8][payload].
func (s *sessionState) handleBinary(data []byte) {
	if len(data) < 3 {
		return
	}
	seq := int64(binary.BigEndian.Uint16(data[0:2]))
	op := data[2]
	payload := data[3:]

	for {
		cur := s.seqAck.Load()
		if seq <= cur || s.seqAck.CompareAndSwap(cur, seq) {
			break
		}
	}

	users := s.userList()

	s.daveMu.Lock()
	defer s.daveMu.Unlock()

	switch int(op) {
	case OpDaveExternalSender:
		responses, err := s.dave.ProcessExternalSender(payload, users)
		if err != nil {
			s.resetDave(0)
			return
		}
		for _, resp := range responses {
			s.sendBinary(OpDaveCommitWelcome, resp)
		}
	case OpDaveProposals:
		resp, err := s.dave.ProcessProposals(payload, users)
		if err != nil {
			s.g.logger.Warnf("dave proposals failed, resetting session")
			s.resetDave(0)
			return
		}
		if resp != nil {
			s.sendBinary(OpDaveCommitWelcome, resp)
		}
	case OpDaveCommit, OpDaveWelcome:
		var tid uint16
		var err error
		if int(op) == OpDaveWelcome {
			tid, err = s.dave.ProcessWelcome(payload)
		} else {
			tid, err = s.dave.ProcessCommit(payload)
		}
		if err != nil {
			if len(payload) >= 2 {
				tid = binary.BigEndian.Uint16(payload[:2])
			}
			s.g.logger.Warnf("dave transition failed (op %d), resetting", op)
			s.resetDave(tid)
			return
		}
		if tid != 0 {
			s.sendJSON(OpTransitionReady, map[string]any{"transition_id": tid})
		}
	default:
		s.g.logger.Debugf("received unknown binary op %d (seq %d)", op, seq)
	}
}

// resetDave recovers from any DAVE operational failure: reset, ack the
// failed transition via op 31, re-handshake with a fresh key package.
// Callers hold daveMu.
func (s *sessionState) resetDave(transitionID uint16) {
	s.dave.Reset()
	s.sendJSON(OpDaveInvalidCommit, map[string]any{"transition_id": transitionID})
	if kp, err := s.dave.SetupSession(dave.InitialVersion); err == nil {
		s.sendBinary(OpDaveKeyPackage, kp)
	}
}

func (s *sessionState) userList() []uint64 {
	users := make([]uint64, 0, len(s.connectedUsers))
	for id := range s.connectedUsers {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

func (s *sessionState) sendJSON(op int, d any) {
	payload, err := protocol.MarshalWS(d)
	if err != nil {
		return
	}
	msg, err := protocol.MarshalWS(Message{Op: op, D: payload})
	if err != nil {
		return
	}
	select {
	case s.writeCh <- preparedFrame{messageType: websocket.TextMessage, data: msg}:
	case <-s.ctx.Done():
	}
}

func (s *sessionState) sendBinary(op int, payload []byte) {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(op))
	frame = append(frame, payload...)
	select {
	case s.writeCh <- preparedFrame{messageType: websocket.BinaryMessage, data: frame}:
	case <-s.ctx.Done():
	}
}

func outcomePtr(o outcome) *outcome { return &o }
