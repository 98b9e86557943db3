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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTrackRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info TrackInfo
	}{
		{
			"full metadata",
			TrackInfo{
				Identifier: "dQw4w9WgXcQ",
				IsSeekable: true,
				Author:     "Rick Astley",
				Length:     212000,
				Title:      "Never Gonna Give You Up",
				URI:        strPtr("https://example.com/watch?v=dQw4w9WgXcQ"),
				ArtworkURL: strPtr("https://example.com/art.jpg"),
				ISRC:       strPtr("GBARL9300135"),
				SourceName: "http",
				Position:   1500,
			},
		},
		{
			"stream without optionals",
			TrackInfo{
				Identifier: "https://stream.example.com/radio",
				Author:     "Unknown Author",
				IsStream:   true,
				Title:      "radio",
				SourceName: "http",
			},
		},
		{
			"unicode title",
			TrackInfo{
				Identifier: "id",
				IsSeekable: true,
				Author:     "Ólafur Arnalds",
				Length:     1,
				Title:      "ソラニン / 花束",
				SourceName: "local",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.info.IsSeekable = !tt.info.IsStream
			encoded := EncodeTrack(tt.info)
			decoded, err := DecodeTrack(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.info, decoded)
		})
	}
}

// buildLegacyBlob writes a version 1 or 2 body by hand so decode can be
// exercised against blobs produced by older writers.
func buildLegacyBlob(t *testing.T, version uint8, info TrackInfo) string {
	t.Helper()
	var body bytes.Buffer
	body.WriteByte(version)
	writeUTF(&body, info.Title)
	writeUTF(&body, info.Author)
	writeU64(&body, info.Length)
	writeUTF(&body, info.Identifier)
	if info.IsStream {
		body.WriteByte(1)
	} else {
		body.WriteByte(0)
	}
	if version >= 2 {
		writeOptUTF(&body, info.URI)
	}
	writeUTF(&body, info.SourceName)
	writeU64(&body, info.Position)

	var out bytes.Buffer
	var h [4]byte
	binary.BigEndian.PutUint32(h[:], uint32(body.Len())|1<<30)
	out.Write(h[:])
	out.Write(body.Bytes())
	return base64.StdEncoding.EncodeToString(out.Bytes())
}

func TestDecodeTrackLegacyVersions(t *testing.T) {
	info := TrackInfo{
		Identifier: "abc123",
		IsSeekable: true,
		Author:     "Author",
		Length:     60000,
		Title:      "Title",
		URI:        strPtr("https://example.com/a.mp3"),
		SourceName: "http",
		Position:   250,
	}

	t.Run("v2", func(t *testing.T) {
		decoded, err := DecodeTrack(buildLegacyBlob(t, 2, info))
		require.NoError(t, err)
		assert.Equal(t, info.Title, decoded.Title)
		assert.Equal(t, info.URI, decoded.URI)
		assert.Nil(t, decoded.ArtworkURL)
		assert.Nil(t, decoded.ISRC)
		assert.Equal(t, info.Position, decoded.Position)
	})

	t.Run("v1", func(t *testing.T) {
		decoded, err := DecodeTrack(buildLegacyBlob(t, 1, info))
		require.NoError(t, err)
		assert.Equal(t, info.Identifier, decoded.Identifier)
		assert.Nil(t, decoded.URI)
		assert.Equal(t, info.SourceName, decoded.SourceName)
	})
}

func TestDecodeTrackErrors(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!"},
		{"too short", base64.StdEncoding.EncodeToString([]byte{0x01})},
		{"unknown version", func() string {
			var out bytes.Buffer
			var h [4]byte
			binary.BigEndian.PutUint32(h[:], 1|1<<30)
			out.Write(h[:])
			out.WriteByte(9)
			return base64.StdEncoding.EncodeToString(out.Bytes())
		}()},
		{"truncated body", func() string {
			var out bytes.Buffer
			var h [4]byte
			binary.BigEndian.PutUint32(h[:], 64|1<<30)
			out.Write(h[:])
			out.WriteByte(3)
			out.Write([]byte{0x00, 0xFF}) // claims 255-byte title
			return base64.StdEncoding.EncodeToString(out.Bytes())
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTrack(tt.encoded)
			assert.Error(t, err)
		})
	}
}

func TestTrackEndReasonMayStartNext(t *testing.T) {
	assert.True(t, TrackEndFinished.MayStartNext())
	assert.True(t, TrackEndLoadFailed.MayStartNext())
	assert.False(t, TrackEndStopped.MayStartNext())
	assert.False(t, TrackEndReplaced.MayStartNext())
	assert.False(t, TrackEndCleanup.MayStartNext())
}
