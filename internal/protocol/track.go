// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Track binary codec versions. Encode always writes the newest; decode
// accepts 1 through 3 for client compatibility.
const (
	trackVersionMax = 3
	// Header flag bit 0: body starts with a version byte.
	trackFlagVersioned = 1
)

var (
	ErrTrackTooShort       = errors.New("track blob too short")
	ErrTrackUnknownVersion = errors.New("unknown track version")
)

// TrackInfo is the resolved metadata of a playable track. Immutable once
// created.
type TrackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     uint64  `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   uint64  `json:"position"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	ArtworkURL *string `json:"artworkUrl"`
	ISRC       *string `json:"isrc"`
	SourceName string  `json:"sourceName"`
}

// Track pairs the base64 wire form with its decoded metadata.
type Track struct {
	Encoded    string          `json:"encoded"`
	Info       TrackInfo       `json:"info"`
	PluginInfo map[string]any  `json:"pluginInfo"`
	UserData   json.RawMessage `json:"userData,omitempty"`
}

// NewTrack encodes info and returns the complete track.
func NewTrack(info TrackInfo) Track {
	return Track{
		Encoded:    EncodeTrack(info),
		Info:       info,
		PluginInfo: map[string]any{},
	}
}

// EncodeTrack serialises info into the versioned big-endian blob and
// base64-encodes it. The layout is bit-exact with the Lavalink reference:
// u32 header (size:30 | flags:2), u8 version, UTF title, UTF author,
// u64 length, UTF identifier, u8 isStream, opt-UTF uri, opt-UTF artwork,
// opt-UTF isrc, UTF sourceName, u64 position.
func EncodeTrack(info TrackInfo) string {
	var body bytes.Buffer
	body.WriteByte(trackVersionMax)

	writeUTF(&body, info.Title)
	writeUTF(&body, info.Author)
	writeU64(&body, info.Length)
	writeUTF(&body, info.Identifier)
	if info.IsStream {
		body.WriteByte(1)
	} else {
		body.WriteByte(0)
	}
	writeOptUTF(&body, info.URI)
	writeOptUTF(&body, info.ArtworkURL)
	writeOptUTF(&body, info.ISRC)
	writeUTF(&body, info.SourceName)
	writeU64(&body, info.Position)

	var out bytes.Buffer
	header := uint32(body.Len()) | uint32(trackFlagVersioned)<<30
	var h [4]byte
	binary.BigEndian.PutUint32(h[:], header)
	out.Write(h[:])
	out.Write(body.Bytes())

	return base64.StdEncoding.EncodeToString(out.Bytes())
}

// DecodeTrack parses a base64 track blob into its metadata.
func DecodeTrack(encoded string) (TrackInfo, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return TrackInfo{}, fmt.Errorf("track base64: %w", err)
	}
	if len(data) < 4 {
		return TrackInfo{}, ErrTrackTooShort
	}

	r := bytes.NewReader(data)
	var header uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return TrackInfo{}, err
	}
	flags := (header >> 30) & 0x03

	version := uint8(1)
	if flags&trackFlagVersioned != 0 {
		if version, err = r.ReadByte(); err != nil {
			return TrackInfo{}, err
		}
	}
	if version == 0 || version > trackVersionMax {
		return TrackInfo{}, fmt.Errorf("%w: %d", ErrTrackUnknownVersion, version)
	}

	var info TrackInfo
	if info.Title, err = readUTF(r); err != nil {
		return TrackInfo{}, err
	}
	if info.Author, err = readUTF(r); err != nil {
		return TrackInfo{}, err
	}
	if info.Length, err = readU64(r); err != nil {
		return TrackInfo{}, err
	}
	if info.Identifier, err = readUTF(r); err != nil {
		return TrackInfo{}, err
	}
	streamByte, err := r.ReadByte()
	if err != nil {
		return TrackInfo{}, err
	}
	info.IsStream = streamByte != 0
	info.IsSeekable = !info.IsStream

	if version >= 2 {
		if info.URI, err = readOptUTF(r); err != nil {
			return TrackInfo{}, err
		}
	}
	if version >= 3 {
		if info.ArtworkURL, err = readOptUTF(r); err != nil {
			return TrackInfo{}, err
		}
		if info.ISRC, err = readOptUTF(r); err != nil {
			return TrackInfo{}, err
		}
	}
	if info.SourceName, err = readUTF(r); err != nil {
		return TrackInfo{}, err
	}
	// Position is best-effort: v1 writers did not always include it.
	if pos, err := readU64(r); err == nil {
		info.Position = pos
	}

	return info, nil
}

func writeUTF(w *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	w.Write(l[:])
	w.WriteString(s)
}

func writeOptUTF(w *bytes.Buffer, s *string) {
	if s == nil {
		w.WriteByte(0)
		return
	}
	w.WriteByte(1)
	writeUTF(w, *s)
}

func writeU64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func readUTF(r *bytes.Reader) (string, error) {
	var l uint16
	if err := binary.Read(r, binary.BigEndian, &l); err != nil {
		return "", err
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readOptUTF(r *bytes.Reader) (*string, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	s, err := readUTF(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
