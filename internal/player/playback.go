// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package player

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rapidaai/wavelink/internal/audio/mixer"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/audio/processor"
	"github.com/rapidaai/wavelink/internal/protocol"
)

// trackStuckThreshold is how long the position may stall while playing
// before a TrackStuck event fires.
const trackStuckThreshold = 10 * time.Second

// playbackTask is everything owned by one playing track: its decoder
// command channel, its monitor goroutine, its state/position cells and
// the byte source to close on teardown.
type playbackTask struct {
	cmds       chan processor.Command
	cancel     context.CancelFunc
	reader     io.Closer
	state      *mixer.StateCell
	position   *atomic.Uint64
	endTimeMs  atomic.Uint64 // 0 = none
	manualStop atomic.Bool
}

func (t *playbackTask) seek(ms uint64) {
	select {
	case t.cmds <- processor.Command{Kind: processor.CommandSeek, SeekMs: ms}:
	default:
	}
}

func (t *playbackTask) setEndTime(ms *uint64) {
	if ms == nil {
		t.endTimeMs.Store(0)
		return
	}
	t.endTimeMs.Store(*ms)
}

// stop signals the decoder, cancels the monitor and closes the source.
func (t *playbackTask) stop() {
	t.manualStop.Store(true)
	select {
	case t.cmds <- processor.Command{Kind: processor.CommandStop}:
	default:
	}
	t.state.Store(mixer.StateStopped)
	t.cancel()
	if t.reader != nil {
		_ = t.reader.Close()
	}
}

// Play starts a track, replacing any current one. startMs seeks before
// the first frame; noReplace keeps an existing track instead.
func (p *Player) Play(track protocol.Track, startMs *uint64, noReplace bool) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	if noReplace && p.track != nil {
		p.mu.Unlock()
		return
	}

	prevTask := p.playback
	prevTrack := p.track
	p.playback = nil
	p.track = nil
	p.mu.Unlock()

	if prevTask != nil {
		prevTask.stop()
	}
	if prevTrack != nil {
		p.emit(protocol.Event{
			Type:    protocol.EventTrackEnd,
			GuildID: p.guildID,
			Track:   prevTrack,
			Reason:  protocol.TrackEndReplaced,
		})
	}

	p.startPlayback(track, startMs)
}

// Stop ends the current track, emitting TrackEnd(Stopped) if one played.
func (p *Player) Stop() {
	p.mu.Lock()
	task := p.playback
	track := p.track
	p.playback = nil
	p.track = nil
	p.mu.Unlock()

	if task != nil {
		task.stop()
	}
	if track != nil {
		p.emit(protocol.Event{
			Type:    protocol.EventTrackEnd,
			GuildID: p.guildID,
			Track:   track,
			Reason:  protocol.TrackEndStopped,
		})
	}
}

// startPlayback builds the pipeline: source reader → processor goroutine
// → bounded channel → mixer track, plus the monitor that turns pipeline
// conditions into events.
func (p *Player) startPlayback(track protocol.Track, startMs *uint64) {
	var localAddr = p.planner.NextAddress()

	reader, err := p.sources.Open(track.Info, localAddr)
	if err != nil {
		p.failLoad(track, fmt.Sprintf("failed to open source: %v", err), err)
		return
	}

	// Bounded by configured buffer duration; a full channel blocks the
	// decoder, which stops pulling from the HTTP prefetch buffer.
	depth := p.cfg.Player.BufferDurationMs / pcm.FrameDurationMs
	if depth < 2 {
		depth = 2
	}
	pcmCh := make(chan *pcm.Buffer, depth)
	cmdCh := make(chan processor.Command, 4)
	errCh := make(chan error, 1)

	// Opus passthrough is only legal with an inactive filter chain.
	var opusCh chan []byte
	if !p.chain.IsActive() {
		opusCh = make(chan []byte, depth)
	}

	hint := ""
	if track.Info.URI != nil {
		hint = *track.Info.URI
	}
	proc, err := processor.New(p.logger, reader, hint, pcmCh, opusCh, cmdCh, errCh)
	if err != nil {
		_ = reader.Close()
		p.failLoad(track, fmt.Sprintf("failed to probe media: %v", err), err)
		return
	}

	state := mixer.NewStateCell(mixer.StatePlaying)
	position := &atomic.Uint64{}
	if startMs != nil {
		position.Store(*startMs * pcm.SampleRate / 1000)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	task := &playbackTask{
		cmds:     cmdCh,
		cancel:   cancel,
		reader:   reader,
		state:    state,
		position: position,
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		cancel()
		task.stop()
		return
	}
	trackCopy := track
	p.track = &trackCopy
	p.playback = task
	p.state = state
	p.position = position
	if p.endTime != nil {
		task.setEndTime(p.endTime)
	}
	if p.paused {
		state.Store(mixer.StatePaused)
	}
	p.volumeCell.Set(float32(p.volume) / 100)
	p.mu.Unlock()

	usePassthrough := proc.Passthrough()
	p.mixG.With(func(m *mixer.Mixer) {
		if usePassthrough {
			m.AddPassthroughTrack(opusCh, state, position)
		} else {
			m.AddTrack(pcmCh, p.chain, state, p.volumeCell, position)
		}
	})

	if startMs != nil && *startMs > 0 {
		task.seek(*startMs)
	}

	go proc.Run()
	go p.monitor(monitorCtx, task, trackCopy, errCh)

	p.emit(protocol.Event{
		Type:    protocol.EventTrackStart,
		GuildID: p.guildID,
		Track:   &trackCopy,
	})
}

// monitor watches one track until it ends: natural finish, fatal decode
// error, end-time crossing, or a stuck position.
func (p *Player) monitor(ctx context.Context, task *playbackTask, track protocol.Track, errCh <-chan error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastPos uint64
	var stuckFor time.Duration
	stuckEmitted := false

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			p.logger.Errorf("track failed: %v", err)
			p.clearTask(task)
			task.stop()
			p.emit(protocol.Event{
				Type:    protocol.EventTrackException,
				GuildID: p.guildID,
				Track:   &track,
				Exception: &protocol.Exception{
					Message:  err.Error(),
					Severity: protocol.SeveritySuspicious,
					Cause:    fmt.Sprintf("%T", err),
				},
			})
			p.emit(protocol.Event{
				Type:    protocol.EventTrackEnd,
				GuildID: p.guildID,
				Track:   &track,
				Reason:  protocol.TrackEndLoadFailed,
			})
			return

		case <-ticker.C:
			state := task.state.Load()

			// Natural end: the decoder closed its channel, the mixer
			// drained it and committed Stopped.
			if state == mixer.StateStopped {
				if task.manualStop.Load() {
					return // Stop/Destroy/replace already emitted the event
				}
				p.clearTask(task)
				p.emit(protocol.Event{
					Type:    protocol.EventTrackEnd,
					GuildID: p.guildID,
					Track:   &track,
					Reason:  protocol.TrackEndFinished,
				})
				return
			}

			// End-time monitor.
			if et := task.endTimeMs.Load(); et > 0 {
				posMs := task.position.Load() * 1000 / pcm.SampleRate
				if posMs >= et {
					p.clearTask(task)
					task.stop()
					p.emit(protocol.Event{
						Type:    protocol.EventTrackEnd,
						GuildID: p.guildID,
						Track:   &track,
						Reason:  protocol.TrackEndFinished,
					})
					return
				}
			}

			// Stuck detection: playing but the cursor is frozen.
			if state == mixer.StatePlaying {
				pos := task.position.Load()
				if pos == lastPos {
					stuckFor += 100 * time.Millisecond
					if stuckFor >= trackStuckThreshold && !stuckEmitted {
						stuckEmitted = true
						p.logger.Warnf("track stuck for %s", trackStuckThreshold)
						p.emit(protocol.Event{
							Type:        protocol.EventTrackStuck,
							GuildID:     p.guildID,
							Track:       &track,
							ThresholdMs: uint64(trackStuckThreshold / time.Millisecond),
						})
					}
				} else {
					lastPos = pos
					stuckFor = 0
					stuckEmitted = false
				}
			}
		}
	}
}

// clearTask drops the player's reference to a task that ended on its own,
// leaving later tasks untouched.
func (p *Player) clearTask(task *playbackTask) {
	p.mu.Lock()
	if p.playback == task {
		p.playback = nil
		p.track = nil
	}
	p.mu.Unlock()
}

// failLoad emits the exception/end pair for a track that never started.
func (p *Player) failLoad(track protocol.Track, message string, cause error) {
	p.emit(protocol.Event{
		Type:    protocol.EventTrackException,
		GuildID: p.guildID,
		Track:   &track,
		Exception: &protocol.Exception{
			Message:  message,
			Severity: protocol.SeverityCommon,
			Cause:    cause.Error(),
		},
	})
	p.emit(protocol.Event{
		Type:    protocol.EventTrackEnd,
		GuildID: p.guildID,
		Track:   &track,
		Reason:  protocol.TrackEndLoadFailed,
	})
}
