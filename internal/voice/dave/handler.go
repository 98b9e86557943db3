// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package dave implements the Discord Audio/Video End-to-end encryption
// handshake: the gateway feeds it binary ops 25/27/29/30 and it hands
// back key packages, commit/welcome responses and per-frame encryption.
package dave

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rapidaai/wavelink/pkg/commons"
)

const (
	// InitialVersion is advertised when the player has a channel id.
	InitialVersion uint16 = 1
	// MaxPendingProposals bounds proposals buffered before the external
	// sender arrives; overflow is dropped.
	MaxPendingProposals = 16
)

// SilenceFrame is Discord's Opus silence; it must never be encrypted.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// Handler owns the per-gateway DAVE state machine. Callers serialise
// access (the gateway guards it with a mutex).
type Handler struct {
	logger    commons.Logger
	session   *Session
	userID    uint64
	channelID uint64

	protocolVersion    uint16
	pendingTransitions map[uint16]uint16
	externalSenderSet  bool
	pendingProposals   [][]byte
	wasReady           bool
}

func NewHandler(logger commons.Logger, userID, channelID uint64) *Handler {
	return &Handler{
		logger:             logger,
		userID:             userID,
		channelID:          channelID,
		pendingTransitions: make(map[uint16]uint16),
	}
}

// ProtocolVersion is 0 while in plaintext.
func (h *Handler) ProtocolVersion() uint16 { return h.protocolVersion }

// SetupSession (re)initialises the MLS session and returns the key
// package for op 26. All handshake state resets.
func (h *Handler) SetupSession(version uint16) ([]byte, error) {
	h.protocolVersion = version
	if version == 0 {
		version = InitialVersion
	}

	if h.session != nil {
		if err := h.session.Reinit(version, h.userID, h.channelID); err != nil {
			return nil, err
		}
	} else {
		session, err := NewSession(version, h.userID, h.channelID)
		if err != nil {
			return nil, err
		}
		h.session = session
	}

	h.externalSenderSet = false
	h.pendingProposals = nil
	h.wasReady = false

	kp, err := h.session.CreateKeyPackage()
	if err != nil {
		return nil, err
	}
	h.logger.Debugf("dave session setup for version %d", version)
	return kp, nil
}

// PrepareTransition stages transition_id → version. Returns true when the
// caller should acknowledge with op 23; transition 0 executes immediately
// and needs no ack.
func (h *Handler) PrepareTransition(transitionID, protocolVersion uint16) bool {
	h.pendingTransitions[transitionID] = protocolVersion
	if transitionID == 0 {
		h.ExecuteTransition(0)
		return false
	}
	return true
}

// ExecuteTransition applies a staged transition.
func (h *Handler) ExecuteTransition(transitionID uint16) {
	if next, ok := h.pendingTransitions[transitionID]; ok {
		delete(h.pendingTransitions, transitionID)
		h.protocolVersion = next
		h.logger.Infof("dave transition %d executed, protocol version now %d", transitionID, next)
	}
}

// PrepareEpoch reinitialises the session when a new MLS group starts
// (epoch 1).
func (h *Handler) PrepareEpoch(epoch uint64, protocolVersion uint16) {
	if epoch == 1 {
		h.protocolVersion = protocolVersion
		if _, err := h.SetupSession(protocolVersion); err != nil {
			h.logger.Warnf("dave prepare_epoch: setup failed: %v", err)
		}
	}
}

// Reset drops the session entirely and returns to plaintext.
func (h *Handler) Reset() {
	h.protocolVersion = 0
	h.pendingTransitions = make(map[uint16]uint16)
	h.externalSenderSet = false
	h.pendingProposals = nil
	h.wasReady = false
	h.session = nil
	h.logger.Info("dave session reset to plaintext passthrough after error")
}

// ProcessExternalSender applies the op-25 credential, then drains any
// proposals buffered while it was missing. Returns outgoing op-28 blobs.
func (h *Handler) ProcessExternalSender(data []byte, connectedUsers []uint64) ([][]byte, error) {
	var responses [][]byte
	if h.session == nil {
		return responses, nil
	}
	if err := h.session.SetExternalSender(data); err != nil {
		return nil, err
	}
	h.externalSenderSet = true

	if len(h.pendingProposals) > 0 {
		pending := h.pendingProposals
		h.pendingProposals = nil
		h.logger.Debugf("dave: processing %d buffered proposals", len(pending))
		for _, prop := range pending {
			if res, err := h.runProposals(prop, connectedUsers); err == nil && res != nil {
				responses = append(responses, res)
			}
		}
	}
	return responses, nil
}

// ProcessProposals handles op 27. Before the external sender arrives,
// payloads are buffered (bounded); afterwards they run immediately and may
// return a commit/welcome response.
func (h *Handler) ProcessProposals(data []byte, connectedUsers []uint64) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("invalid dave proposals payload: too short")
	}

	if !h.externalSenderSet {
		if len(h.pendingProposals) < MaxPendingProposals {
			h.logger.Debugf("dave: buffering proposal (%d bytes), external sender not set", len(data))
			h.pendingProposals = append(h.pendingProposals, append([]byte(nil), data...))
		} else {
			h.logger.Warnf("dave: proposal buffer full (%d), dropping", MaxPendingProposals)
		}
		return nil, nil
	}
	if h.session == nil {
		return nil, nil
	}
	return h.runProposals(data, connectedUsers)
}

func (h *Handler) runProposals(data []byte, connectedUsers []uint64) ([]byte, error) {
	op := ProposalsOp(data[0])
	result, err := h.session.ProcessProposals(op, data[1:], connectedUsers)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	out := result.Commit
	out = append(out, result.Welcome...)
	return out, nil
}

// ProcessWelcome handles op 30: u16 transition id, then MLS welcome.
// Returns the transition id; non-zero ids were staged for later execute.
func (h *Handler) ProcessWelcome(data []byte) (uint16, error) {
	return h.processTransitionPayload(data, "welcome", func(rest []byte) error {
		return h.session.ProcessWelcome(rest)
	})
}

// ProcessCommit handles op 29 with the same framing as welcome.
func (h *Handler) ProcessCommit(data []byte) (uint16, error) {
	return h.processTransitionPayload(data, "commit", func(rest []byte) error {
		return h.session.ProcessCommit(rest)
	})
}

func (h *Handler) processTransitionPayload(data []byte, kind string, fn func([]byte) error) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("invalid dave %s payload: too short", kind)
	}
	transitionID := binary.BigEndian.Uint16(data[:2])
	if h.session != nil {
		if err := fn(data[2:]); err != nil {
			return transitionID, err
		}
		if transitionID != 0 {
			h.pendingTransitions[transitionID] = h.protocolVersion
		}
		h.logger.Debugf("dave %s processed for transition %d", kind, transitionID)
	}
	return transitionID, nil
}

// EncryptOpus encrypts one Opus frame, passing it through unchanged while
// the protocol is plaintext, the session is not ready, or the frame is
// Discord silence.
func (h *Handler) EncryptOpus(packet []byte) ([]byte, error) {
	if len(packet) == len(SilenceFrame) &&
		packet[0] == SilenceFrame[0] && packet[1] == SilenceFrame[1] && packet[2] == SilenceFrame[2] {
		return packet, nil
	}
	if h.protocolVersion == 0 {
		return packet, nil
	}
	if h.session == nil {
		return packet, nil
	}

	ready := h.session.IsReady()
	if ready != h.wasReady {
		if ready {
			h.logger.Infof("dave session (v%d) is now ready, starting encrypted transmission", h.protocolVersion)
		} else {
			h.logger.Warnf("dave session (v%d) lost readiness, falling back to plaintext", h.protocolVersion)
		}
		h.wasReady = ready
	}
	if !ready {
		return packet, nil
	}
	return h.session.EncryptOpus(packet)
}
