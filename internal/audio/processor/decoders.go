// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package processor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	hopus "gopkg.in/hraban/opus.v2"
)

// codecKind identifies the probed container/codec pair.
type codecKind int

const (
	codecUnknown codecKind = iota
	codecMP3
	codecOggOpus
	codecFLAC
	codecWAV
)

func (k codecKind) String() string {
	switch k {
	case codecMP3:
		return "mp3"
	case codecOggOpus:
		return "ogg/opus"
	case codecFLAC:
		return "flac"
	case codecWAV:
		return "wav"
	default:
		return "unknown"
	}
}

// errRecoverable wraps per-packet decode errors that should be logged and
// skipped rather than torn down.
type errRecoverable struct{ err error }

func (e errRecoverable) Error() string { return e.err.Error() }
func (e errRecoverable) Unwrap() error { return e.err }

// streamDecoder yields interleaved i16 chunks at the stream's native rate.
type streamDecoder interface {
	// Next returns the next decoded chunk, io.EOF at stream end, or an
	// errRecoverable for skippable packet corruption.
	Next() ([]int16, error)
	SampleRate() int
	Channels() int
	// SeekMs repositions to the given millisecond offset.
	SeekMs(ms uint64) error
}

// probe sniffs magic bytes, falling back to the extension/MIME hint.
func probe(r io.ReadSeeker, hint string) (codecKind, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return codecUnknown, fmt.Errorf("probe: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return codecUnknown, err
	}

	switch {
	case string(magic[:]) == "OggS":
		return codecOggOpus, nil
	case string(magic[:]) == "fLaC":
		return codecFLAC, nil
	case string(magic[:]) == "RIFF":
		return codecWAV, nil
	case string(magic[:3]) == "ID3",
		magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return codecMP3, nil
	}

	hint = strings.ToLower(hint)
	switch {
	case strings.Contains(hint, "mpeg"), strings.Contains(hint, "mp3"):
		return codecMP3, nil
	case strings.Contains(hint, "ogg"), strings.Contains(hint, "opus"):
		return codecOggOpus, nil
	case strings.Contains(hint, "flac"):
		return codecFLAC, nil
	case strings.Contains(hint, "wav"):
		return codecWAV, nil
	}
	return codecUnknown, fmt.Errorf("unrecognised container (magic %x, hint %q)", magic, hint)
}

// ─── MP3 ────────────────────────────────────────────────────────────────────

type mp3Decoder struct {
	dec *gomp3.Decoder
	buf []byte
}

func newMP3Decoder(r io.ReadSeeker) (*mp3Decoder, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	return &mp3Decoder{dec: dec, buf: make([]byte, 16*1024)}, nil
}

// go-mp3 always emits 16-bit little-endian stereo at the stream rate.
func (d *mp3Decoder) SampleRate() int { return d.dec.SampleRate() }
func (d *mp3Decoder) Channels() int   { return 2 }

func (d *mp3Decoder) Next() ([]int16, error) {
	n, err := d.dec.Read(d.buf)
	if n == 0 && err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	n -= n % 2
	out := make([]int16, n/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(d.buf[i*2:]))
	}
	return out, nil
}

func (d *mp3Decoder) SeekMs(ms uint64) error {
	// 4 bytes per output frame (stereo i16) at the stream rate.
	byteOff := int64(ms) * int64(d.dec.SampleRate()) / 1000 * 4
	if l := d.dec.Length(); l > 0 && byteOff > l {
		byteOff = l
	}
	_, err := d.dec.Seek(byteOff, io.SeekStart)
	return err
}

// ─── Ogg/Opus (transcode path) ──────────────────────────────────────────────

type oggOpusDecoder struct {
	src    io.ReadSeeker
	pages  *oggPacketReader
	dec    *hopus.Decoder
	pcmBuf []int16
}

func newOggOpusDecoder(src io.ReadSeeker) (*oggOpusDecoder, error) {
	pages, err := newOggPacketReader(src)
	if err != nil {
		return nil, err
	}
	dec, err := hopus.NewDecoder(48000, 2)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &oggOpusDecoder{
		src:    src,
		pages:  pages,
		dec:    dec,
		pcmBuf: make([]int16, 5760*2), // up to 120 ms per packet
	}, nil
}

// Opus is defined at 48 kHz; the hraban decoder outputs stereo directly.
func (d *oggOpusDecoder) SampleRate() int { return 48000 }
func (d *oggOpusDecoder) Channels() int   { return 2 }

func (d *oggOpusDecoder) Next() ([]int16, error) {
	pkt, err := d.pages.NextPacket()
	if err != nil {
		return nil, err
	}
	n, err := d.dec.Decode(pkt, d.pcmBuf)
	if err != nil {
		return nil, errRecoverable{fmt.Errorf("opus decode: %w", err)}
	}
	out := make([]int16, n*2)
	copy(out, d.pcmBuf[:n*2])
	return out, nil
}

func (d *oggOpusDecoder) SeekMs(ms uint64) error {
	// Ogg has no index: rewind and skip whole pages by granule position.
	if err := d.pages.Restart(); err != nil {
		return err
	}
	target := ms * 48 // granule positions are 48 kHz sample counts
	return d.pages.SkipToGranule(target)
}

// oggPacketReader adapts pion's page-oriented reader into a packet stream;
// writers in this ecosystem put one Opus packet per page.
type oggPacketReader struct {
	src    io.ReadSeeker
	reader *oggreader.OggReader
}

func newOggPacketReader(src io.ReadSeeker) (*oggPacketReader, error) {
	reader, _, err := oggreader.NewWith(src)
	if err != nil {
		return nil, fmt.Errorf("ogg: %w", err)
	}
	return &oggPacketReader{src: src, reader: reader}, nil
}

func (o *oggPacketReader) NextPacket() ([]byte, error) {
	payload, _, err := o.reader.ParseNextPage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errRecoverable{fmt.Errorf("ogg page: %w", err)}
	}
	return payload, nil
}

func (o *oggPacketReader) Restart() error {
	if _, err := o.src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(o.src)
	if err != nil {
		return err
	}
	o.reader = reader
	return nil
}

func (o *oggPacketReader) SkipToGranule(target uint64) error {
	for {
		_, hdr, err := o.reader.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // seek past end lands at EOF
			}
			return err
		}
		if hdr.GranulePosition >= target {
			return nil
		}
	}
}

// ─── FLAC ───────────────────────────────────────────────────────────────────

type flacDecoder struct {
	stream *flac.Stream
	rate   int
	chans  int
	shift  uint // scale BitsPerSample to 16
}

func newFLACDecoder(r io.ReadSeeker) (*flacDecoder, error) {
	stream, err := flac.NewSeek(r)
	if err != nil {
		return nil, fmt.Errorf("flac: %w", err)
	}
	info := stream.Info
	shift := uint(0)
	if info.BitsPerSample > 16 {
		shift = uint(info.BitsPerSample - 16)
	}
	return &flacDecoder{
		stream: stream,
		rate:   int(info.SampleRate),
		chans:  int(info.NChannels),
		shift:  shift,
	}, nil
}

func (d *flacDecoder) SampleRate() int { return d.rate }
func (d *flacDecoder) Channels() int   { return d.chans }

func (d *flacDecoder) Next() ([]int16, error) {
	frame, err := d.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errRecoverable{fmt.Errorf("flac frame: %w", err)}
	}

	nSamples := len(frame.Subframes[0].Samples)
	out := make([]int16, nSamples*d.chans)
	for ch := 0; ch < d.chans; ch++ {
		samples := frame.Subframes[ch].Samples
		for i, s := range samples {
			v := s >> d.shift
			if d.shift == 0 && d.stream.Info.BitsPerSample < 16 {
				v = s << (16 - d.stream.Info.BitsPerSample)
			}
			out[i*d.chans+ch] = clampI16(int32(v))
		}
	}
	return out, nil
}

func (d *flacDecoder) SeekMs(ms uint64) error {
	sample := ms * uint64(d.rate) / 1000
	_, err := d.stream.Seek(sample)
	return err
}

// ─── WAV ────────────────────────────────────────────────────────────────────

// wavDecoder parses RIFF/WAVE PCM directly; the format is trivial enough
// that the container is handled in-package.
type wavDecoder struct {
	src       io.ReadSeeker
	rate      int
	chans     int
	bits      int
	dataStart int64
	dataLen   int64
	read      int64
	buf       []byte
}

func newWAVDecoder(r io.ReadSeeker) (*wavDecoder, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	d := &wavDecoder{src: r, buf: make([]byte, 16*1024)}
	pos := int64(12)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, fmt.Errorf("wav chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		pos += 8

		switch id {
		case "fmt ":
			fmtBuf := make([]byte, size)
			if _, err := io.ReadFull(r, fmtBuf); err != nil {
				return nil, err
			}
			format := binary.LittleEndian.Uint16(fmtBuf[0:2])
			if format != 1 { // PCM only
				return nil, fmt.Errorf("unsupported wav format tag %d", format)
			}
			d.chans = int(binary.LittleEndian.Uint16(fmtBuf[2:4]))
			d.rate = int(binary.LittleEndian.Uint32(fmtBuf[4:8]))
			d.bits = int(binary.LittleEndian.Uint16(fmtBuf[14:16]))
			pos += size
		case "data":
			d.dataStart = pos
			d.dataLen = size
			if d.rate == 0 || d.chans == 0 {
				return nil, errors.New("wav data before fmt chunk")
			}
			if d.bits != 16 && d.bits != 8 {
				return nil, fmt.Errorf("unsupported wav bit depth %d", d.bits)
			}
			return d, nil
		default:
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return nil, err
			}
			pos += size
		}
	}
}

func (d *wavDecoder) SampleRate() int { return d.rate }
func (d *wavDecoder) Channels() int   { return d.chans }

func (d *wavDecoder) Next() ([]int16, error) {
	remaining := d.dataLen - d.read
	if remaining <= 0 {
		return nil, io.EOF
	}
	want := int64(len(d.buf))
	if want > remaining {
		want = remaining
	}
	n, err := d.src.Read(d.buf[:want])
	if n == 0 {
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		return nil, io.EOF
	}
	d.read += int64(n)

	if d.bits == 8 {
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			out[i] = (int16(d.buf[i]) - 128) << 8
		}
		return out, nil
	}
	n -= n % 2
	out := make([]int16, n/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(d.buf[i*2:]))
	}
	return out, nil
}

func (d *wavDecoder) SeekMs(ms uint64) error {
	bytesPerSample := int64(d.bits / 8 * d.chans)
	off := int64(ms) * int64(d.rate) / 1000 * bytesPerSample
	if off > d.dataLen {
		off = d.dataLen
	}
	if _, err := d.src.Seek(d.dataStart+off, io.SeekStart); err != nil {
		return err
	}
	d.read = off
	return nil
}

func clampI16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
