// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// VoiceState is the Discord voice-server assignment delivered by the bot.
type VoiceState struct {
	Token     string  `json:"token"`
	Endpoint  string  `json:"endpoint"`
	SessionID string  `json:"sessionId"`
	ChannelID *string `json:"channelId,omitempty"`
}

// Player is the REST representation of one guild player.
type Player struct {
	GuildID string      `json:"guildId"`
	Track   *Track      `json:"track"`
	Volume  int         `json:"volume"`
	Paused  bool        `json:"paused"`
	State   PlayerState `json:"state"`
	Voice   VoiceState  `json:"voice"`
	Filters Filters     `json:"filters"`
}

// Players wraps the list response.
type Players struct {
	Players []Player `json:"players"`
}

// OptionalUint64 distinguishes absent / null / value in PATCH bodies:
// null clears, a number sets, absence leaves untouched.
type OptionalUint64 struct {
	Present bool
	Null    bool
	Value   uint64
}

func (o *OptionalUint64) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(data, []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// OptionalString distinguishes absent / null / value for encoded tracks.
type OptionalString struct {
	Present bool
	Null    bool
	Value   string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(data, []byte("null")) {
		o.Null = true
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return errors.New("expected string or null")
	}
	return nil
}

// PlayerUpdateTrack is the track object of a player PATCH.
type PlayerUpdateTrack struct {
	// Encoded: string plays, null stops, absent keeps the current track.
	Encoded    OptionalString  `json:"encoded"`
	Identifier *string         `json:"identifier"`
	UserData   json.RawMessage `json:"userData"`
}

// PlayerUpdateRequest is the body of
// PATCH /v4/sessions/{sessionId}/players/{guildId}.
type PlayerUpdateRequest struct {
	Track *PlayerUpdateTrack `json:"track"`
	// Deprecated pre-4.0 aliases still sent by some clients.
	EncodedTrack OptionalString `json:"encodedTrack"`
	Identifier   *string        `json:"identifier"`

	Position *uint64        `json:"position"`
	EndTime  OptionalUint64 `json:"endTime"`
	Volume   *int           `json:"volume"`
	Paused   *bool          `json:"paused"`
	Filters  *Filters       `json:"filters"`
	Voice    *VoiceState    `json:"voice"`
}
