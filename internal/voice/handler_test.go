// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package voice

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/internal/audio/mixer"
	"github.com/rapidaai/wavelink/pkg/commons"
)

func newTestSessionState(t *testing.T) (*sessionState, *atomic.Int64) {
	t.Helper()
	g := NewGateway(
		commons.NewNopLogger(),
		Config{GuildID: "1", UserID: 7, SessionID: "s", Token: "t", Endpoint: "e"},
		mixer.NewGuarded(mixer.New(mixer.TapeSettings{StopDurationMs: 20, Curve: mixer.CurveLinear})),
		&atomic.Int64{},
		&atomic.Uint64{}, &atomic.Uint64{},
		nil,
	)
	seqAck := &atomic.Int64{}
	seqAck.Store(-1)

	state, err := newSessionState(g, context.Background(), make(chan preparedFrame, 16), seqAck)
	require.NoError(t, err)
	t.Cleanup(state.close)
	return state, seqAck
}

func TestSeqAckHighWaterMark(t *testing.T) {
	state, seqAck := newTestSessionState(t)

	feed := func(seq int64) {
		state.handleText([]byte(fmt.Sprintf(`{"op":999,"d":{},"seq":%d}`, seq)))
	}

	assert.Equal(t, int64(-1), seqAck.Load())

	feed(1)
	assert.Equal(t, int64(1), seqAck.Load())
	feed(5)
	assert.Equal(t, int64(5), seqAck.Load())
	// Out-of-order delivery must never regress the mark.
	feed(3)
	assert.Equal(t, int64(5), seqAck.Load())
	feed(6)
	assert.Equal(t, int64(6), seqAck.Load())

	// Messages without seq leave the mark alone.
	state.handleText([]byte(`{"op":999,"d":{}}`))
	assert.Equal(t, int64(6), seqAck.Load())
}

func TestBinarySeqAck(t *testing.T) {
	state, seqAck := newTestSessionState(t)

	frame := make([]byte, 3)
	binary.BigEndian.PutUint16(frame[0:2], 9)
	frame[2] = 0xFE // unknown op: only the seq is consumed
	state.handleBinary(frame)
	assert.Equal(t, int64(9), seqAck.Load())

	binary.BigEndian.PutUint16(frame[0:2], 4)
	state.handleBinary(frame)
	assert.Equal(t, int64(9), seqAck.Load(), "binary seq is a high-water mark too")
}

func TestUserConnectDisconnect(t *testing.T) {
	state, _ := newTestSessionState(t)

	state.handleUserConnect([]byte(`{"user_ids":["100","200"]}`))
	assert.ElementsMatch(t, []uint64{7, 100, 200}, state.userList())

	state.handleUserDisconnect([]byte(`{"user_id":"100"}`))
	assert.ElementsMatch(t, []uint64{7, 200}, state.userList())

	// Malformed payloads are dropped, never fatal.
	state.handleUserConnect([]byte(`{"user_ids":"nope"}`))
	assert.ElementsMatch(t, []uint64{7, 200}, state.userList())
}

func TestMalformedGatewayMessageIgnored(t *testing.T) {
	state, seqAck := newTestSessionState(t)
	assert.Nil(t, state.handleText([]byte(`not json at all`)))
	assert.Equal(t, int64(-1), seqAck.Load())
}
