// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package player ties one guild's mixer, filter chain, voice gateway and
// control state together and emits the lifecycle events the control
// surface forwards to the bot.
package player

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/audio/filters"
	"github.com/rapidaai/wavelink/internal/audio/mixer"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/internal/sources"
	"github.com/rapidaai/wavelink/internal/voice"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// Emitter delivers events onto the owning session's ordered event queue.
type Emitter func(protocol.Event)

// Player is one guild's playback context. All control-surface access goes
// through its mutex; the audio path reads only atomics and the guarded
// mixer.
type Player struct {
	logger  commons.Logger
	cfg     *config.AppConfig
	guildID string
	userID  uint64

	mu      sync.Mutex
	volume  int
	paused  bool
	track   *protocol.Track
	endTime *uint64
	filters protocol.Filters
	voice   protocol.VoiceState

	chain *filters.Holder
	mixG  *mixer.Guarded

	// state and position belong to the current playback task and are
	// replaced wholesale on every Play so a dying track can never mutate
	// its successor's cells.
	state      *mixer.StateCell
	volumeCell *mixer.VolumeCell
	position   *atomic.Uint64 // 48 kHz sample frames
	ping       atomic.Int64
	framesSent atomic.Uint64
	framesNull atomic.Uint64

	gatewayCancel context.CancelFunc
	gatewayDone   chan struct{}
	playback      *playbackTask

	emit    Emitter
	sources *sources.Manager
	planner routeplanner.Planner

	destroyed bool
}

// New builds an idle player for a guild.
func New(
	logger commons.Logger,
	cfg *config.AppConfig,
	guildID string,
	userID uint64,
	emit Emitter,
	srcs *sources.Manager,
	planner routeplanner.Planner,
) *Player {
	p := &Player{
		logger:  logger.With("guild", guildID),
		cfg:     cfg,
		guildID: guildID,
		userID:  userID,
		volume:  100,
		emit:    emit,
		sources: srcs,
		planner: planner,
		chain:   filters.NewHolder(),
		state:   mixer.NewStateCell(mixer.StateStopped),
	}
	p.position = &atomic.Uint64{}
	p.volumeCell = mixer.NewVolumeCell(1)
	p.ping.Store(-1)
	p.mixG = mixer.NewGuarded(mixer.New(mixer.TapeSettings{
		StopDurationMs: float64(cfg.Player.Tape.TapeStopDurationMs),
		Curve:          mixer.ParseCurve(cfg.Player.Tape.Curve),
	}))
	return p
}

func (p *Player) GuildID() string { return p.guildID }

// PositionMs converts the mixer's sample cursor to milliseconds.
func (p *Player) PositionMs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position.Load() * 1000 / pcm.SampleRate
}

// Connected reports whether a gateway task is live.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gatewayCancel != nil
}

// Snapshot renders the REST representation.
func (p *Player) Snapshot() protocol.Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.Player{
		GuildID: p.guildID,
		Track:   p.trackSnapshotLocked(),
		Volume:  p.volume,
		Paused:  p.paused,
		State:   p.stateLocked(),
		Voice:   p.voice,
		Filters: p.filters,
	}
}

// StateSnapshot renders the live position state for playerUpdate.
func (p *Player) StateSnapshot() protocol.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() protocol.PlayerState {
	return protocol.PlayerState{
		Time:      time.Now().UnixMilli(),
		Position:  p.position.Load() * 1000 / pcm.SampleRate,
		Connected: p.gatewayCancel != nil,
		Ping:      p.ping.Load(),
	}
}

func (p *Player) trackSnapshotLocked() *protocol.Track {
	if p.track == nil {
		return nil
	}
	t := *p.track
	t.Info.Position = p.position.Load() * 1000 / pcm.SampleRate
	return &t
}

// FrameCounters exposes sent/nulled totals for the stats collector.
func (p *Player) FrameCounters() (sent, nulled uint64) {
	return p.framesSent.Load(), p.framesNull.Load()
}

// IsPlaying reports an active unpaused track (stats).
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track != nil && !p.paused
}

// ─── Voice ──────────────────────────────────────────────────────────────────

// ApplyVoice updates the voice-server assignment and (re)starts the
// gateway when anything changed or no task runs yet.
func (p *Player) ApplyVoice(v protocol.VoiceState) {
	p.mu.Lock()
	changed := p.voice.Token != v.Token ||
		p.voice.Endpoint != v.Endpoint ||
		p.voice.SessionID != v.SessionID ||
		!stringPtrEq(p.voice.ChannelID, v.ChannelID)
	p.voice = v
	needsTask := p.gatewayCancel == nil

	if !changed && !needsTask {
		p.mu.Unlock()
		return
	}
	p.startGatewayLocked()
	p.mu.Unlock()
}

// startGatewayLocked aborts any previous gateway task and spawns a fresh
// one for the current voice state. Caller holds p.mu.
func (p *Player) startGatewayLocked() {
	if p.gatewayCancel != nil {
		p.gatewayCancel()
		p.gatewayCancel = nil
	}
	if p.voice.Endpoint == "" || p.voice.Token == "" || p.voice.SessionID == "" {
		return
	}

	var channelID uint64
	if p.voice.ChannelID != nil {
		channelID, _ = strconv.ParseUint(*p.voice.ChannelID, 10, 64)
	}

	gw := voice.NewGateway(
		p.logger,
		voice.Config{
			GuildID:     p.guildID,
			UserID:      p.userID,
			ChannelID:   channelID,
			SessionID:   p.voice.SessionID,
			Token:       p.voice.Token,
			Endpoint:    p.voice.Endpoint,
			OpusBitrate: p.cfg.Player.OpusBitrate,
			IdleFrames:  p.cfg.Player.IdleFrames,
		},
		p.mixG,
		&p.ping,
		&p.framesSent,
		&p.framesNull,
		voice.EventSink(p.emit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	p.gatewayCancel = cancel
	done := make(chan struct{})
	p.gatewayDone = done

	go func() {
		defer close(done)
		if err := gw.Run(ctx); err != nil {
			p.logger.Errorf("voice gateway exited with error: %v", err)
		}
	}()
}

// ─── Control operations ─────────────────────────────────────────────────────

// SetVolume clamps to 0–1000 and propagates immediately.
func (p *Player) SetVolume(v int) {
	if v < 0 {
		v = 0
	}
	if v > 1000 {
		v = 1000
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.volumeCell.Set(float32(v) / 100)
}

// SetPaused toggles playback through the tape-ramp transitional states.
// No event is emitted.
func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused == paused {
		return
	}
	p.paused = paused

	if p.track == nil {
		return
	}
	if paused {
		p.state.CompareAndSwap(mixer.StatePlaying, mixer.StateStopping)
	} else {
		p.state.CompareAndSwap(mixer.StatePaused, mixer.StateStarting)
		// If the stop ramp is still running, flip directly back.
		p.state.CompareAndSwap(mixer.StateStopping, mixer.StateStarting)
	}
}

// Seek forwards to the decoder and resets filter state; the mixer drains
// whatever is already buffered and resumes from the new position.
func (p *Player) Seek(ms uint64) {
	p.mu.Lock()
	task := p.playback
	p.mu.Unlock()
	if task == nil {
		return
	}
	task.seek(ms)
	p.chain.Reset()
	p.mu.Lock()
	p.position.Store(ms * pcm.SampleRate / 1000)
	p.mu.Unlock()
}

// SetFilters validates nothing (the router already did), stores the
// merged config and rebuilds the DSP chain atomically.
func (p *Player) SetFilters(f protocol.Filters) {
	p.mu.Lock()
	p.filters.Merge(f)
	merged := p.filters
	p.mu.Unlock()
	p.chain.Rebuild(&merged)
}

// SetEndTime installs or clears the stop deadline.
func (p *Player) SetEndTime(ms *uint64) {
	p.mu.Lock()
	p.endTime = ms
	if p.playback != nil {
		p.playback.setEndTime(ms)
	}
	p.mu.Unlock()
}

// Volume returns the control-surface volume.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Filters returns the stored filter config.
func (p *Player) Filters() protocol.Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters
}

// Destroy tears the player down: stops the track, aborts all tasks and
// emits the terminal cleanup event.
func (p *Player) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	task := p.playback
	p.playback = nil
	endedTrack := p.track
	p.track = nil
	cancel := p.gatewayCancel
	p.gatewayCancel = nil
	done := p.gatewayDone
	p.mu.Unlock()

	if task != nil {
		task.stop()
	}
	p.mixG.With(func(m *mixer.Mixer) { m.StopAll() })

	if cancel != nil {
		cancel()
		if done != nil {
			select {
			case <-done:
			case <-time.After(500 * time.Millisecond):
			}
		}
	}

	if endedTrack != nil {
		p.emit(protocol.Event{
			Type:    protocol.EventTrackEnd,
			GuildID: p.guildID,
			Track:   endedTrack,
			Reason:  protocol.TrackEndCleanup,
		})
	}
}

func stringPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
