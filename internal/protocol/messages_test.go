// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalEvent(t *testing.T, e Event) map[string]any {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestEventMarshalShapes(t *testing.T) {
	track := NewTrack(TrackInfo{Identifier: "id", Title: "t", Author: "a", SourceName: "http"})

	t.Run("track end", func(t *testing.T) {
		out := marshalEvent(t, Event{
			Type:    EventTrackEnd,
			GuildID: "42",
			Track:   &track,
			Reason:  TrackEndFinished,
		})
		assert.Equal(t, "event", out["op"])
		assert.Equal(t, "TrackEndEvent", out["type"])
		assert.Equal(t, "42", out["guildId"])
		assert.Equal(t, "finished", out["reason"])
		assert.NotNil(t, out["track"])
	})

	t.Run("websocket closed uses reason key", func(t *testing.T) {
		out := marshalEvent(t, Event{
			Type:     EventWebSocketClosed,
			GuildID:  "42",
			Code:     4006,
			CloseMsg: "session no longer valid",
			ByRemote: true,
		})
		assert.Equal(t, float64(4006), out["code"])
		assert.Equal(t, "session no longer valid", out["reason"])
		assert.Equal(t, true, out["byRemote"])
		_, hasTrack := out["track"]
		assert.False(t, hasTrack)
	})

	t.Run("track stuck", func(t *testing.T) {
		out := marshalEvent(t, Event{
			Type:        EventTrackStuck,
			GuildID:     "42",
			Track:       &track,
			ThresholdMs: 10000,
		})
		assert.Equal(t, float64(10000), out["thresholdMs"])
	})
}

func TestOptionalFieldsDecode(t *testing.T) {
	t.Run("null clears", func(t *testing.T) {
		var req PlayerUpdateRequest
		require.NoError(t, json.Unmarshal([]byte(`{"track":{"encoded":null}}`), &req))
		require.NotNil(t, req.Track)
		assert.True(t, req.Track.Encoded.Present)
		assert.True(t, req.Track.Encoded.Null)
	})

	t.Run("value sets", func(t *testing.T) {
		var req PlayerUpdateRequest
		require.NoError(t, json.Unmarshal([]byte(`{"endTime":5000,"track":{"encoded":"abc"}}`), &req))
		assert.True(t, req.EndTime.Present)
		assert.False(t, req.EndTime.Null)
		assert.Equal(t, uint64(5000), req.EndTime.Value)
		assert.Equal(t, "abc", req.Track.Encoded.Value)
	})

	t.Run("absent stays absent", func(t *testing.T) {
		var req PlayerUpdateRequest
		require.NoError(t, json.Unmarshal([]byte(`{}`), &req))
		assert.False(t, req.EndTime.Present)
		assert.Nil(t, req.Track)
	})
}
