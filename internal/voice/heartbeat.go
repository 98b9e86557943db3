// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package voice

import (
	"context"
	"sync/atomic"
	"time"
)

// runHeartbeat sends op 3 every interval, echoing the sequence ack. The
// send timestamp feeds ping calculation on heartbeat ack.
func runHeartbeat(
	ctx context.Context,
	send func(op int, d any),
	seqAck *atomic.Int64,
	lastBeat *atomic.Int64,
	intervalMs int64,
) {
	if intervalMs <= 0 {
		intervalMs = 30000
	}
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UnixMilli()
			lastBeat.Store(now)
			send(OpHeartbeat, map[string]any{
				"t":       now,
				"seq_ack": seqAck.Load(),
			})
		}
	}
}
