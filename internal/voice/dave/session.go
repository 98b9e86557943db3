// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ProposalsOp is the first byte of an op-27 payload.
type ProposalsOp byte

const (
	ProposalsAppend ProposalsOp = 0
	ProposalsRevoke ProposalsOp = 1
)

// CommitWelcome is the outgoing blob pair produced when processing
// proposals makes us the committer.
type CommitWelcome struct {
	Commit  []byte
	Welcome []byte
}

// Session is the MLS-style group-key session backing one voice channel's
// end-to-end encryption. The group secret advances with every commit or
// welcome; per-frame keys are ratcheted from it with HKDF and frames are
// sealed with AES-256-GCM.
type Session struct {
	version   uint16
	userID    uint64
	channelID uint64

	epoch          uint64
	groupSecret    [32]byte
	frameAEAD      cipher.AEAD
	nonceCounter   uint32
	externalSender []byte
	members        map[uint64]struct{}
	identity       [32]byte
	ready          bool
}

var errNotReady = errors.New("dave session not ready")

// NewSession creates a fresh session for (version, user, channel).
func NewSession(version uint16, userID, channelID uint64) (*Session, error) {
	if version == 0 {
		return nil, errors.New("dave session requires version >= 1")
	}
	s := &Session{}
	if err := s.Reinit(version, userID, channelID); err != nil {
		return nil, err
	}
	return s, nil
}

// Reinit resets the session to a pre-handshake state with a new identity.
func (s *Session) Reinit(version uint16, userID, channelID uint64) error {
	if version == 0 {
		return errors.New("dave session requires version >= 1")
	}
	s.version = version
	s.userID = userID
	s.channelID = channelID
	s.epoch = 0
	s.groupSecret = [32]byte{}
	s.frameAEAD = nil
	s.nonceCounter = 0
	s.externalSender = nil
	s.members = map[uint64]struct{}{userID: {}}
	s.ready = false
	if _, err := io.ReadFull(rand.Reader, s.identity[:]); err != nil {
		return fmt.Errorf("dave identity: %w", err)
	}
	return nil
}

// CreateKeyPackage serialises this member's join material (op 26 payload):
// u16 version, u64 user id, u64 channel id, 32-byte identity key.
func (s *Session) CreateKeyPackage() ([]byte, error) {
	out := make([]byte, 0, 2+8+8+32)
	out = binary.BigEndian.AppendUint16(out, s.version)
	out = binary.BigEndian.AppendUint64(out, s.userID)
	out = binary.BigEndian.AppendUint64(out, s.channelID)
	out = append(out, s.identity[:]...)
	return out, nil
}

// SetExternalSender installs the voice server's external sender credential.
func (s *Session) SetExternalSender(data []byte) error {
	if len(data) < 32 {
		return errors.New("external sender payload too short")
	}
	s.externalSender = append([]byte(nil), data...)
	return nil
}

// ProcessProposals folds an append/revoke proposal list into the group.
// When this member is the designated committer (lowest user id) it returns
// a commit/welcome pair to broadcast.
func (s *Session) ProcessProposals(op ProposalsOp, data []byte, userIDs []uint64) (*CommitWelcome, error) {
	if s.externalSender == nil {
		return nil, errors.New("proposals before external sender")
	}
	if op != ProposalsAppend && op != ProposalsRevoke {
		return nil, fmt.Errorf("unknown proposals op %d", op)
	}

	for _, uid := range userIDs {
		if op == ProposalsAppend {
			s.members[uid] = struct{}{}
		} else {
			delete(s.members, uid)
		}
	}

	s.advanceEpoch(data)

	// Lowest-id member commits; everyone else waits for op 29.
	for uid := range s.members {
		if uid < s.userID {
			return nil, nil
		}
	}

	commit := s.buildTranscript(0x01, data)
	welcome := s.buildTranscript(0x02, data)
	return &CommitWelcome{Commit: commit, Welcome: welcome}, nil
}

// ProcessCommit folds a remote commit into the key schedule.
func (s *Session) ProcessCommit(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty commit")
	}
	s.advanceEpoch(data)
	return nil
}

// ProcessWelcome joins the group from a welcome blob.
func (s *Session) ProcessWelcome(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty welcome")
	}
	s.advanceEpoch(data)
	return nil
}

// advanceEpoch folds transcript bytes into the group secret and rebuilds
// the frame cipher. After the first fold the session is ready.
func (s *Session) advanceEpoch(transcript []byte) {
	s.epoch++

	info := make([]byte, 0, 32)
	info = append(info, "wavelink dave frame"...)
	info = binary.BigEndian.AppendUint64(info, s.epoch)
	info = binary.BigEndian.AppendUint16(info, s.version)

	h := sha256.Sum256(append(append([]byte{}, s.groupSecret[:]...), transcript...))
	kdf := hkdf.New(sha256.New, h[:], s.externalSender, info)
	_, _ = io.ReadFull(kdf, s.groupSecret[:])

	block, err := aes.NewCipher(s.groupSecret[:])
	if err != nil {
		s.ready = false
		return
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		s.ready = false
		return
	}
	s.frameAEAD = aead
	s.nonceCounter = 0
	s.ready = true
}

// IsReady reports whether EncryptOpus will actually encrypt.
func (s *Session) IsReady() bool { return s.ready }

// EncryptOpus seals one Opus frame. Output layout:
// ciphertext||tag||u32 nonce counter.
func (s *Session) EncryptOpus(pkt []byte) ([]byte, error) {
	if !s.ready || s.frameAEAD == nil {
		return nil, errNotReady
	}
	s.nonceCounter++
	var nonce [12]byte
	binary.BigEndian.PutUint32(nonce[8:], s.nonceCounter)

	sealed := s.frameAEAD.Seal(nil, nonce[:], pkt, nil)
	out := make([]byte, 0, len(sealed)+4)
	out = append(out, sealed...)
	out = binary.BigEndian.AppendUint32(out, s.nonceCounter)
	return out, nil
}
