// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Outbound control-WebSocket message ops.
const (
	OpReady        = "ready"
	OpPlayerUpdate = "playerUpdate"
	OpStats        = "stats"
	OpEvent        = "event"
)

// Ready is sent once per control-WS connection.
type Ready struct {
	Op        string `json:"op"`
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

// PlayerState is the live position snapshot carried by playerUpdate and
// by player REST responses.
type PlayerState struct {
	Time      int64  `json:"time"`
	Position  uint64 `json:"position"`
	Connected bool   `json:"connected"`
	Ping      int64  `json:"ping"`
}

// PlayerUpdateMessage is the periodic position report.
type PlayerUpdateMessage struct {
	Op      string      `json:"op"`
	GuildID string      `json:"guildId"`
	State   PlayerState `json:"state"`
}

// Stats mirrors the Lavalink stats op.
type Stats struct {
	Op             string      `json:"op,omitempty"`
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         uint64      `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats"`
}

type Memory struct {
	Free       uint64 `json:"free"`
	Used       uint64 `json:"used"`
	Allocated  uint64 `json:"allocated"`
	Reservable uint64 `json:"reservable"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// TrackEndReason enumerates why playback stopped.
type TrackEndReason string

const (
	TrackEndFinished   TrackEndReason = "finished"
	TrackEndLoadFailed TrackEndReason = "loadFailed"
	TrackEndStopped    TrackEndReason = "stopped"
	TrackEndReplaced   TrackEndReason = "replaced"
	TrackEndCleanup    TrackEndReason = "cleanup"
)

// MayStartNext reports whether the client should advance its queue.
func (r TrackEndReason) MayStartNext() bool {
	return r == TrackEndFinished || r == TrackEndLoadFailed
}

// Event is the tagged union delivered on the control WebSocket as
// {"op":"event","type":...,"guildId":...,...}.
type Event struct {
	Type    string `json:"type"`
	GuildID string `json:"guildId"`

	// TrackStartEvent, TrackEndEvent, TrackExceptionEvent, TrackStuckEvent
	Track *Track `json:"track,omitempty"`
	// TrackEndEvent
	Reason TrackEndReason `json:"reason,omitempty"`
	// TrackExceptionEvent
	Exception *Exception `json:"exception,omitempty"`
	// TrackStuckEvent
	ThresholdMs uint64 `json:"thresholdMs,omitempty"`
	// WebSocketClosedEvent
	Code     int    `json:"code,omitempty"`
	CloseMsg string `json:"reason2,omitempty"`
	ByRemote bool   `json:"byRemote,omitempty"`
}

// Event type tags.
const (
	EventTrackStart      = "TrackStartEvent"
	EventTrackEnd        = "TrackEndEvent"
	EventTrackException  = "TrackExceptionEvent"
	EventTrackStuck      = "TrackStuckEvent"
	EventWebSocketClosed = "WebSocketClosedEvent"
)

// MarshalJSON shapes the union so that only fields relevant to the tag are
// emitted, with WebSocketClosedEvent reusing the "reason" key the way the
// wire protocol does.
func (e Event) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"op":      OpEvent,
		"type":    e.Type,
		"guildId": e.GuildID,
	}
	switch e.Type {
	case EventTrackStart:
		out["track"] = e.Track
	case EventTrackEnd:
		out["track"] = e.Track
		out["reason"] = e.Reason
	case EventTrackException:
		out["track"] = e.Track
		out["exception"] = e.Exception
	case EventTrackStuck:
		out["track"] = e.Track
		out["thresholdMs"] = e.ThresholdMs
	case EventWebSocketClosed:
		out["code"] = e.Code
		out["reason"] = e.CloseMsg
		out["byRemote"] = e.ByRemote
	}
	return sonic.Marshal(out)
}

// MarshalWS serialises any outbound WS payload on the hot path.
func MarshalWS(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// UnmarshalWS parses inbound JSON on the hot path.
func UnmarshalWS(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

var _ json.Marshaler = Event{}
