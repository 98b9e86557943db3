// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package processor

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV renders a playable PCM WAV file in memory.
func buildWAV(t *testing.T, rate, channels int, frames int) []byte {
	t.Helper()
	dataLen := frames * channels * 2
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name  string
		magic []byte
		hint  string
		want  codecKind
	}{
		{"ogg magic", []byte("OggSxxxx"), "", codecOggOpus},
		{"flac magic", []byte("fLaCxxxx"), "", codecFLAC},
		{"riff magic", []byte("RIFFxxxx"), "", codecWAV},
		{"id3 magic", []byte("ID3\x04xxxx"), "", codecMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00, 0x00}, "", codecMP3},
		{"hint fallback mp3", []byte{0x00, 0x01, 0x02, 0x03}, "audio/mpeg", codecMP3},
		{"hint fallback wav", []byte{0x00, 0x01, 0x02, 0x03}, "something.wav", codecWAV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := probe(bytes.NewReader(tt.magic), tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := probe(bytes.NewReader([]byte{1, 2, 3, 4, 5}), "")
		assert.Error(t, err)
	})
}

func TestWAVDecoder(t *testing.T) {
	const rate, frames = 44100, 44100 / 10
	wav := buildWAV(t, rate, 2, frames)

	dec, err := newWAVDecoder(bytes.NewReader(wav))
	require.NoError(t, err)
	assert.Equal(t, rate, dec.SampleRate())
	assert.Equal(t, 2, dec.Channels())

	total := 0
	for {
		chunk, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total += len(chunk)
	}
	assert.Equal(t, frames*2, total)
}

func TestWAVDecoderSeek(t *testing.T) {
	const rate = 48000
	wav := buildWAV(t, rate, 2, rate) // one second

	dec, err := newWAVDecoder(bytes.NewReader(wav))
	require.NoError(t, err)

	require.NoError(t, dec.SeekMs(500))
	total := 0
	for {
		chunk, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		total += len(chunk)
	}
	// Exactly the second half remains.
	assert.Equal(t, rate, total)
}

func TestWAVDecoderRejectsNonPCM(t *testing.T) {
	wav := buildWAV(t, 44100, 2, 10)
	// Corrupt the format tag to float (3).
	wav[20] = 3
	_, err := newWAVDecoder(bytes.NewReader(wav))
	assert.Error(t, err)
}
