// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package speaker

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/internal/audio/mixer"
	"github.com/rapidaai/wavelink/internal/voice/dave"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// TestLoopCadence checks the absolute-deadline scheduler: over a window
// of N ticks the loop accounts for one frame per tick, sent or nulled,
// with no burst catch-up.
func TestLoopCadence(t *testing.T) {
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()
	go func() {
		buf := make([]byte, 2048)
		for {
			if _, _, err := peer.ReadFromUDP(buf); err != nil {
				return
			}
		}
	}()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	m := mixer.NewGuarded(mixer.New(mixer.TapeSettings{StopDurationMs: 20, Curve: mixer.CurveLinear}))
	var sent, nulled atomic.Uint64

	loop, err := New(
		commons.NewNopLogger(),
		Config{SSRC: 1, SecretKey: testKey(), Mode: ModeXSalsa20Poly305, Bitrate: 96000, IdleFrames: 1},
		m,
		dave.NewHandler(commons.NewNopLogger(), 1, 0),
		&sync.Mutex{},
		conn,
		peer.LocalAddr().(*net.UDPAddr),
		&sent, &nulled,
	)
	require.NoError(t, err)

	const window = 500 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	loop.Run(ctx)

	total := sent.Load() + nulled.Load()
	expected := uint64(window / (20 * time.Millisecond))
	assert.InDelta(t, float64(expected), float64(total), 4,
		"one frame accounted per 20 ms tick")
	// An idle mixer sends exactly the five-frame silence tail.
	assert.Equal(t, uint64(5), sent.Load())
}
