// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/session"
	"github.com/rapidaai/wavelink/internal/sources"
)

func (a *API) sessionOr404(c *gin.Context) (*session.Session, bool) {
	s, ok := a.registry.Get(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound,
			protocol.NewRESTError(http.StatusNotFound, "Not Found", "session not found", c.Request.URL.Path))
		return nil, false
	}
	return s, true
}

func (a *API) getPlayers(c *gin.Context) {
	s, ok := a.sessionOr404(c)
	if !ok {
		return
	}
	players := s.Players()
	out := make([]protocol.Player, 0, len(players))
	for _, p := range players {
		out = append(out, p.Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) getPlayer(c *gin.Context) {
	s, ok := a.sessionOr404(c)
	if !ok {
		return
	}
	p, ok := s.ExistingPlayer(c.Param("guildId"))
	if !ok {
		c.JSON(http.StatusNotFound,
			protocol.NewRESTError(http.StatusNotFound, "Not Found", "player not found", c.Request.URL.Path))
		return
	}
	c.JSON(http.StatusOK, p.Snapshot())
}

// updatePlayer is the workhorse: PATCH /v4/sessions/{id}/players/{guild}
// mutates volume, pause state, end time, filters, voice server, the
// playing track and finally position, in that order.
func (a *API) updatePlayer(c *gin.Context) {
	s, ok := a.sessionOr404(c)
	if !ok {
		return
	}
	guildID := c.Param("guildId")

	var body protocol.PlayerUpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", err.Error(), c.Request.URL.Path))
		return
	}

	// Filter validation happens before any mutation: a rejected config
	// must leave the chain untouched.
	if body.Filters != nil {
		if disallowed := body.Filters.Disallowed(a.enabledFilters()); len(disallowed) > 0 {
			c.JSON(http.StatusBadRequest, protocol.NewRESTError(
				http.StatusBadRequest, "Bad Request",
				"following filters are disabled in the config: "+strings.Join(disallowed, ", "),
				c.Request.URL.Path))
			return
		}
	}

	noReplace := c.Query("noReplace") == "true"
	p := s.Player(guildID)

	if body.Volume != nil {
		p.SetVolume(*body.Volume)
	}
	if body.Paused != nil {
		p.SetPaused(*body.Paused)
	}
	if body.EndTime.Present {
		if body.EndTime.Null {
			p.SetEndTime(nil)
		} else {
			v := body.EndTime.Value
			p.SetEndTime(&v)
		}
	}
	if body.Filters != nil {
		p.SetFilters(*body.Filters)
	}
	if body.Voice != nil {
		p.ApplyVoice(*body.Voice)
	}

	// Track changes come after voice so a play on a fresh player attaches
	// to the just-started gateway.
	a.applyTrackUpdate(c, p, &body, noReplace)
	if c.IsAborted() {
		return
	}

	// A bare position on an unchanged track is a seek.
	if body.Position != nil {
		p.Seek(*body.Position)
	}

	c.JSON(http.StatusOK, p.Snapshot())
}

// applyTrackUpdate resolves the requested track mutation: encoded string
// plays, explicit null stops, identifier resolves through the source
// manager. Legacy top-level fields are honoured for older clients.
func (a *API) applyTrackUpdate(c *gin.Context, p playerControl, body *protocol.PlayerUpdateRequest, noReplace bool) {
	encoded := body.EncodedTrack
	identifier := body.Identifier
	var userData []byte
	if body.Track != nil {
		encoded = body.Track.Encoded
		identifier = body.Track.Identifier
		userData = body.Track.UserData
	}

	switch {
	case encoded.Present && encoded.Null:
		p.Stop()

	case encoded.Present:
		info, err := protocol.DecodeTrack(encoded.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				protocol.NewRESTError(http.StatusBadRequest, "Bad Request", "invalid encoded track: "+err.Error(), c.Request.URL.Path))
			return
		}
		track := protocol.Track{Encoded: encoded.Value, Info: info, PluginInfo: map[string]any{}, UserData: userData}
		p.Play(track, body.Position, noReplace)

	case identifier != nil:
		result := a.sources.Load(*identifier)
		if result.Type != sources.LoadTypeTrack || result.Track == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				protocol.NewRESTError(http.StatusBadRequest, "Bad Request", "identifier did not resolve to a track", c.Request.URL.Path))
			return
		}
		track := *result.Track
		track.UserData = userData
		p.Play(track, body.Position, noReplace)
	}
}

// playerControl is the slice of player the track-update path needs;
// narrow so tests can stub it.
type playerControl interface {
	Play(track protocol.Track, startMs *uint64, noReplace bool)
	Stop()
	Seek(ms uint64)
}

func (a *API) destroyPlayer(c *gin.Context) {
	s, ok := a.sessionOr404(c)
	if !ok {
		return
	}
	s.DestroyPlayer(c.Param("guildId"))
	c.Status(http.StatusNoContent)
}

// updateSession configures resuming for the session.
func (a *API) updateSession(c *gin.Context) {
	s, ok := a.sessionOr404(c)
	if !ok {
		return
	}
	var body struct {
		Resuming *bool `json:"resuming"`
		Timeout  *int  `json:"timeout"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", err.Error(), c.Request.URL.Path))
		return
	}
	if body.Resuming != nil {
		s.Resuming = *body.Resuming
	}
	if body.Timeout != nil && *body.Timeout > 0 {
		s.TimeoutSec = *body.Timeout
	}
	c.JSON(http.StatusOK, gin.H{"resuming": s.Resuming, "timeout": s.TimeoutSec})
}

// enabledFilters maps the config block into the lookup Disallowed wants.
func (a *API) enabledFilters() map[string]bool {
	f := a.cfg.Filters
	return map[string]bool{
		"volume":        f.Volume,
		"equalizer":     f.Equalizer,
		"karaoke":       f.Karaoke,
		"timescale":     f.Timescale,
		"tremolo":       f.Tremolo,
		"vibrato":       f.Vibrato,
		"distortion":    f.Distortion,
		"rotation":      f.Rotation,
		"channelMix":    f.ChannelMix,
		"lowPass":       f.LowPass,
		"highPass":      f.HighPass,
		"echo":          f.Echo,
		"chorus":        f.Chorus,
		"flanger":       f.Flanger,
		"phaser":        f.Phaser,
		"phonograph":    f.Phonograph,
		"reverb":        f.Reverb,
		"compressor":    f.Compressor,
		"normalization": f.Normalization,
		"spatial":       f.Spatial,
	}
}
