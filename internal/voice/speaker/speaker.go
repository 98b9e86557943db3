// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package speaker runs the 20 ms transmit loop: mix → Opus encode →
// DAVE → SRTP-style encrypt → paced UDP send.
package speaker

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"layeh.com/gopus"

	"github.com/rapidaai/wavelink/internal/audio/mixer"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/voice/dave"
	"github.com/rapidaai/wavelink/pkg/commons"
)

const (
	rtpPayloadType = 0x78
	// Silence frames sent once Config.IdleFrames consecutive no-audio
	// ticks have passed; transmission then stops until audio returns.
	silenceTailFrames = 5
)

// Config is the static part of a speak loop.
type Config struct {
	SSRC      uint32
	SecretKey [32]byte
	Mode      string
	// Bitrate in bits/second for the Opus encoder.
	Bitrate int
	// IdleFrames is the consecutive-silence threshold before gating.
	IdleFrames int
}

// Loop is one player's transmit loop.
type Loop struct {
	logger commons.Logger
	cfg    Config

	mixer        *mixer.Guarded
	dave         *dave.Handler
	daveMu       *sync.Mutex
	conn         *net.UDPConn
	peer         *net.UDPAddr
	framesSent   *atomic.Uint64
	framesNulled *atomic.Uint64
	missedTicks  atomic.Uint64

	encoder   *gopus.Encoder
	encryptor encryptor
	rtpSeq    uint16
	rtpTS     uint32
}

// New builds a loop ready to Run.
func New(
	logger commons.Logger,
	cfg Config,
	mix *mixer.Guarded,
	daveHandler *dave.Handler,
	daveMu *sync.Mutex,
	conn *net.UDPConn,
	peer *net.UDPAddr,
	framesSent, framesNulled *atomic.Uint64,
) (*Loop, error) {
	enc, err := gopus.NewEncoder(pcm.SampleRate, pcm.Channels, gopus.Audio)
	if err != nil {
		return nil, err
	}
	bitrate := cfg.Bitrate
	if bitrate <= 0 {
		bitrate = 96000
	}
	enc.SetBitrate(bitrate)
	if cfg.IdleFrames <= 0 {
		cfg.IdleFrames = 10
	}

	cryptor, err := newEncryptor(cfg.Mode, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	return &Loop{
		logger:       logger,
		cfg:          cfg,
		mixer:        mix,
		dave:         daveHandler,
		daveMu:       daveMu,
		conn:         conn,
		peer:         peer,
		framesSent:   framesSent,
		framesNulled: framesNulled,
		encoder:      enc,
		encryptor:    cryptor,
	}, nil
}

// MissedTicks is the count of deadlines the loop failed to meet.
func (l *Loop) MissedTicks() uint64 { return l.missedTicks.Load() }

// Run paces transmission on absolute deadlines: tick n fires at
// start + n·20 ms. Missed deadlines are counted and skipped, never
// "caught up" with a burst.
func (l *Loop) Run(ctx context.Context) {
	mixBuf := make([]int16, pcm.FrameLen)
	pktBuf := make([]byte, 0, 1500)

	silentTicks := 0
	silenceTail := 0
	transmitting := true

	start := time.Now()
	var tick uint64

	for {
		tick++
		deadline := start.Add(time.Duration(tick) * pcm.FrameDurationMs * time.Millisecond)
		wait := time.Until(deadline)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			// Deadline already missed: count every slot that has passed,
			// serve this one now and realign so the next deadline lies in
			// the future instead of bursting through the backlog.
			behind := uint64(time.Since(start) / (pcm.FrameDurationMs * time.Millisecond))
			if behind < tick {
				behind = tick
			}
			l.missedTicks.Add(behind - tick + 1)
			tick = behind
			select {
			case <-ctx.Done():
				return
			default:
			}
		}

		// 1. Prefer a container-level Opus frame (passthrough).
		var opusFrame []byte
		hasAudio := false
		l.mixer.With(func(m *mixer.Mixer) {
			if frame := m.TakeOpusFrame(); frame != nil {
				opusFrame = frame
				hasAudio = true
				return
			}
			hasAudio = m.Mix(mixBuf)
		})

		// 2. Mixed path: encode, with silence gating.
		if opusFrame == nil {
			if !hasAudio {
				silentTicks++
				if silentTicks >= l.cfg.IdleFrames {
					if transmitting {
						transmitting = false
						silenceTail = silenceTailFrames
					}
					if silenceTail > 0 {
						silenceTail--
						opusFrame = dave.SilenceFrame
					} else {
						l.framesNulled.Add(1)
						continue
					}
				}
			} else {
				silentTicks = 0
				transmitting = true
			}

			if opusFrame == nil {
				encoded, err := l.encoder.Encode(mixBuf, pcm.FrameSamples, 1275)
				if err != nil {
					l.logger.Warnf("opus encode failed: %v", err)
					l.framesNulled.Add(1)
					continue
				}
				opusFrame = encoded
			}
		}

		// 3. DAVE end-to-end encryption rewrites the payload before the
		// transport encryption sees it.
		l.daveMu.Lock()
		sealed, err := l.dave.EncryptOpus(opusFrame)
		l.daveMu.Unlock()
		if err != nil {
			l.logger.Warnf("dave encrypt failed: %v", err)
			l.framesNulled.Add(1)
			continue
		}

		// 4. RTP header + transport encryption + UDP send.
		pktBuf = pktBuf[:0]
		pkt, err := l.buildPacket(pktBuf, sealed)
		if err != nil {
			l.logger.Warnf("packet build failed: %v", err)
			l.framesNulled.Add(1)
			continue
		}
		if _, err := l.conn.WriteToUDP(pkt, l.peer); err != nil {
			l.logger.Warnf("udp send failed: %v", err)
			l.framesNulled.Add(1)
			continue
		}
		l.framesSent.Add(1)
	}
}

// buildPacket writes the RTP header then the encrypted payload into dst.
func (l *Loop) buildPacket(dst, payload []byte) ([]byte, error) {
	l.rtpSeq++
	l.rtpTS += pcm.FrameSamples

	hdr := rtp.Header{
		Version:        2,
		PayloadType:    rtpPayloadType,
		SequenceNumber: l.rtpSeq,
		Timestamp:      l.rtpTS,
		SSRC:           l.cfg.SSRC,
	}
	headerBytes, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}

	dst = append(dst, headerBytes...)
	return l.encryptor.Encrypt(dst, headerBytes, payload)
}
