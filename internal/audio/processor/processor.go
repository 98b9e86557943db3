// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package processor turns a byte source into audio for the mixer:
// either pooled 48 kHz stereo PCM (transcode mode) or raw Opus packets
// forwarded untouched (passthrough mode).
package processor

import (
	"errors"
	"fmt"
	"io"

	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// Command is a control message for a running processor.
type Command struct {
	Kind   CommandKind
	SeekMs uint64
}

type CommandKind int

const (
	CommandSeek CommandKind = iota
	CommandStop
)

type commandOutcome int

const (
	outcomeNone commandOutcome = iota
	outcomeStop
	outcomeSeeked
	outcomeSeekFailed
)

// Source is the byte input: the streaming readers and local files both
// satisfy it.
type Source interface {
	io.ReadSeeker
	ContentType() string
}

// Processor owns one decode loop. Mode is decided once at construction:
// an Opus container with a passthrough channel available means raw packet
// forwarding, anything else transcodes to 48 kHz stereo i16.
type Processor struct {
	logger commons.Logger
	src    Source

	dec       streamDecoder
	oggPages  *oggPacketReader
	resampler *Resampler
	kind      codecKind

	pcmTx  chan<- *pcm.Buffer
	opusTx chan<- []byte
	cmdRx  <-chan Command
	errTx  chan<- error

	passthrough bool
}

// New probes src and builds a processor. opusTx may be nil (filters active
// or no passthrough channel on the mixer), which forces transcode mode.
func New(
	logger commons.Logger,
	src Source,
	hint string,
	pcmTx chan<- *pcm.Buffer,
	opusTx chan<- []byte,
	cmdRx <-chan Command,
	errTx chan<- error,
) (*Processor, error) {
	kind, err := probe(src, hint+" "+src.ContentType())
	if err != nil {
		return nil, err
	}

	p := &Processor{
		logger: logger,
		src:    src,
		kind:   kind,
		pcmTx:  pcmTx,
		opusTx: opusTx,
		cmdRx:  cmdRx,
		errTx:  errTx,
	}

	// Passthrough only when the container already carries what Discord
	// wants and nothing downstream needs PCM.
	if kind == codecOggOpus && opusTx != nil {
		pages, err := newOggPacketReader(src)
		if err != nil {
			return nil, err
		}
		p.oggPages = pages
		p.passthrough = true
		logger.Info("processor: opus passthrough mode, zero transcode")
		return p, nil
	}

	switch kind {
	case codecMP3:
		p.dec, err = newMP3Decoder(src)
	case codecOggOpus:
		p.dec, err = newOggOpusDecoder(src)
	case codecFLAC:
		p.dec, err = newFLACDecoder(src)
	case codecWAV:
		p.dec, err = newWAVDecoder(src)
	default:
		err = fmt.Errorf("no decoder for %s", kind)
	}
	if err != nil {
		return nil, err
	}

	p.resampler = NewResampler(p.dec.SampleRate(), pcm.SampleRate)
	logger.Infof("processor: transcode mode %s %dHz %dch -> %dHz",
		kind, p.dec.SampleRate(), p.dec.Channels(), pcm.SampleRate)
	return p, nil
}

// Passthrough reports whether the processor forwards raw Opus packets.
func (p *Processor) Passthrough() bool { return p.passthrough }

// Run executes the decode loop until EOF, Stop, or a fatal error. It owns
// and closes the output channel, which is how the mixer learns the track
// finished.
func (p *Processor) Run() {
	if p.passthrough {
		defer close(p.opusTx)
		p.runPassthrough()
		return
	}
	defer close(p.pcmTx)
	p.runTranscode()
}

func (p *Processor) runPassthrough() {
	for {
		if p.checkCommands() == outcomeStop {
			return
		}
		pkt, err := p.oggPages.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var rec errRecoverable
			if errors.As(err, &rec) {
				p.logger.Warnf("passthrough packet error (recoverable): %v", err)
				continue
			}
			p.fatal(err)
			return
		}
		// Forward raw bytes; the channel send blocks when the mixer is
		// behind, which is the backpressure path.
		p.opusTx <- pkt
	}
}

func (p *Processor) runTranscode() {
	pool := pcm.Get()

	for {
		if p.checkCommands() == outcomeStop {
			return
		}

		chunk, err := p.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var rec errRecoverable
			if errors.As(err, &rec) {
				p.logger.Warnf("decode error (recoverable): %v", err)
				continue
			}
			p.fatal(err)
			return
		}
		if len(chunk) == 0 {
			continue
		}

		stereo := toStereo(chunk, p.dec.Channels())
		buf := pool.Acquire()
		buf.Samples = p.resampler.Process(stereo, buf.Samples)
		if len(buf.Samples) == 0 {
			buf.Release()
			continue
		}
		p.pcmTx <- buf
	}
}

// checkCommands services at most one pending command between packets.
func (p *Processor) checkCommands() commandOutcome {
	select {
	case cmd, ok := <-p.cmdRx:
		if !ok {
			return outcomeStop
		}
		switch cmd.Kind {
		case CommandStop:
			return outcomeStop
		case CommandSeek:
			if p.passthrough {
				if err := p.oggPages.Restart(); err != nil {
					p.logger.Warnf("processor: passthrough seek restart failed: %v", err)
					return outcomeSeekFailed
				}
				if err := p.oggPages.SkipToGranule(cmd.SeekMs * 48); err != nil {
					p.logger.Warnf("processor: passthrough seek failed: %v", err)
					return outcomeSeekFailed
				}
				return outcomeSeeked
			}
			if err := p.dec.SeekMs(cmd.SeekMs); err != nil {
				p.logger.Warnf("processor: seek to %dms failed: %v", cmd.SeekMs, err)
				return outcomeSeekFailed
			}
			p.resampler.Reset()
			return outcomeSeeked
		}
	default:
	}
	return outcomeNone
}

func (p *Processor) fatal(err error) {
	p.logger.Errorf("processor: fatal decode error: %v", err)
	if p.errTx != nil {
		select {
		case p.errTx <- err:
		default:
		}
	}
}
