// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package dave

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/pkg/commons"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(commons.NewNopLogger(), 1111, 2222)
}

func externalSender() []byte {
	sender := make([]byte, 64)
	for i := range sender {
		sender[i] = byte(i)
	}
	return sender
}

// commitPayload frames transition id + opaque commit bytes as op 29 does.
func commitPayload(tid uint16, body []byte) []byte {
	out := make([]byte, 2, 2+len(body))
	binary.BigEndian.PutUint16(out, tid)
	return append(out, body...)
}

func TestEncryptOpusPassthroughAtVersionZero(t *testing.T) {
	h := newTestHandler(t)
	pkt := []byte{0x4F, 0x50, 0x55, 0x53}

	out, err := h.EncryptOpus(pkt)
	require.NoError(t, err)
	assert.Equal(t, pkt, out)
}

func TestEncryptOpusPassthroughBeforeReady(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)

	pkt := []byte{1, 2, 3, 4, 5}
	out, err := h.EncryptOpus(pkt)
	require.NoError(t, err)
	assert.Equal(t, pkt, out, "not ready: bytes pass through unchanged")
}

func TestSilenceFrameNeverEncrypted(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)
	makeReady(t, h)

	out, err := h.EncryptOpus(SilenceFrame)
	require.NoError(t, err)
	assert.Equal(t, SilenceFrame, out)
}

// makeReady walks the handler through external sender + a commit so the
// key schedule is established.
func makeReady(t *testing.T, h *Handler) {
	t.Helper()
	_, err := h.ProcessExternalSender(externalSender(), []uint64{1111})
	require.NoError(t, err)
	_, err = h.ProcessCommit(commitPayload(0, []byte("epoch-1-commit")))
	require.NoError(t, err)
}

func TestEncryptOpusAfterReady(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)
	makeReady(t, h)

	pkt := []byte{10, 20, 30, 40, 50, 60}
	out, err := h.EncryptOpus(pkt)
	require.NoError(t, err)
	assert.NotEqual(t, pkt, out)
	// AES-GCM tag (16) plus trailing nonce counter (4).
	assert.Equal(t, len(pkt)+16+4, len(out))

	// Consecutive frames must differ even for identical input.
	out2, err := h.EncryptOpus(pkt)
	require.NoError(t, err)
	assert.NotEqual(t, out, out2)
}

func TestKeyPackageLayout(t *testing.T) {
	h := newTestHandler(t)
	kp, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)

	require.Len(t, kp, 2+8+8+32)
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(kp[0:2]))
	assert.Equal(t, uint64(1111), binary.BigEndian.Uint64(kp[2:10]))
	assert.Equal(t, uint64(2222), binary.BigEndian.Uint64(kp[10:18]))
}

func TestProposalsBufferedUntilExternalSender(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)

	// No external sender yet: proposals buffer, no response.
	resp, err := h.ProcessProposals([]byte{0, 0xAA, 0xBB}, []uint64{1111})
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Len(t, h.pendingProposals, 1)

	// The buffer is bounded; overflow drops silently.
	for i := 0; i < MaxPendingProposals+5; i++ {
		_, err := h.ProcessProposals([]byte{0, byte(i)}, []uint64{1111})
		require.NoError(t, err)
	}
	assert.Len(t, h.pendingProposals, MaxPendingProposals)

	// External sender arrival drains the buffer.
	_, err = h.ProcessExternalSender(externalSender(), []uint64{1111})
	require.NoError(t, err)
	assert.Empty(t, h.pendingProposals)
}

func TestProposalsCommitterElection(t *testing.T) {
	// Lowest connected user id commits; a higher id stays quiet.
	low := NewHandler(commons.NewNopLogger(), 100, 2222)
	_, err := low.SetupSession(InitialVersion)
	require.NoError(t, err)
	_, err = low.ProcessExternalSender(externalSender(), nil)
	require.NoError(t, err)
	resp, err := low.ProcessProposals([]byte{0, 0x01}, []uint64{100, 200})
	require.NoError(t, err)
	assert.NotNil(t, resp, "lowest member emits commit/welcome")

	high := NewHandler(commons.NewNopLogger(), 200, 2222)
	_, err = high.SetupSession(InitialVersion)
	require.NoError(t, err)
	_, err = high.ProcessExternalSender(externalSender(), nil)
	require.NoError(t, err)
	resp, err = high.ProcessProposals([]byte{0, 0x01}, []uint64{100})
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestTransitionStagingAndExecution(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)

	// Non-zero transitions are staged and acknowledged.
	assert.True(t, h.PrepareTransition(7, 1))
	assert.Equal(t, uint16(1), h.ProtocolVersion())

	h.ExecuteTransition(7)
	assert.Equal(t, uint16(1), h.ProtocolVersion())

	// Transition 0 executes immediately, no ack.
	h.protocolVersion = 0
	assert.False(t, h.PrepareTransition(0, 1))
	assert.Equal(t, uint16(1), h.ProtocolVersion())
}

func TestWelcomeTooShort(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)

	_, err = h.ProcessWelcome([]byte{0x01})
	assert.Error(t, err)
}

func TestResetReturnsToPlaintext(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)
	makeReady(t, h)

	h.Reset()
	assert.Equal(t, uint16(0), h.ProtocolVersion())

	pkt := []byte{9, 8, 7}
	out, err := h.EncryptOpus(pkt)
	require.NoError(t, err)
	assert.Equal(t, pkt, out)
}

func TestPrepareEpochReinitialises(t *testing.T) {
	h := newTestHandler(t)
	_, err := h.SetupSession(InitialVersion)
	require.NoError(t, err)
	makeReady(t, h)
	require.True(t, h.session.IsReady())

	h.PrepareEpoch(1, 1)
	assert.False(t, h.session.IsReady(), "epoch 1 restarts the handshake")
}
