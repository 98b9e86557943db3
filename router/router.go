// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package router exposes the Lavalink v4 REST and control-WebSocket
// surface on a gin engine.
package router

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/monitoring"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/internal/session"
	"github.com/rapidaai/wavelink/internal/sources"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// API bundles the dependencies every handler needs.
type API struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	registry *session.Registry
	sources  *sources.Manager
	planner  routeplanner.Planner
	stats    *monitoring.Collector
}

// New wires all v4 routes onto the engine.
func New(
	cfg *config.AppConfig,
	engine *gin.Engine,
	logger commons.Logger,
	registry *session.Registry,
	srcs *sources.Manager,
	planner routeplanner.Planner,
	stats *monitoring.Collector,
) *API {
	api := &API{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		sources:  srcs,
		planner:  planner,
		stats:    stats,
	}

	engine.GET("/version", api.version)

	v4 := engine.Group("/v4", api.authorized)
	{
		v4.GET("/websocket", api.websocket)
		v4.GET("/info", api.info)
		v4.GET("/stats", api.nodeStats)
		v4.GET("/loadtracks", api.loadTracks)
		v4.GET("/decodetrack", api.decodeTrack)
		v4.POST("/decodetracks", api.decodeTracks)

		v4.PATCH("/sessions/:sessionId", api.updateSession)
		v4.GET("/sessions/:sessionId/players", api.getPlayers)
		v4.GET("/sessions/:sessionId/players/:guildId", api.getPlayer)
		v4.PATCH("/sessions/:sessionId/players/:guildId", api.updatePlayer)
		v4.DELETE("/sessions/:sessionId/players/:guildId", api.destroyPlayer)

		v4.GET("/routeplanner/status", api.routePlannerStatus)
		v4.POST("/routeplanner/free/address", api.routePlannerFreeAddress)
		v4.POST("/routeplanner/free/all", api.routePlannerFreeAll)
	}
	return api
}

// authorized enforces the shared password on every v4 route.
func (a *API) authorized(c *gin.Context) {
	if a.cfg.Server.Password == "" {
		c.Next()
		return
	}
	if c.GetHeader("Authorization") != a.cfg.Server.Password {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			protocol.NewRESTError(http.StatusUnauthorized, "Unauthorized", "invalid password", c.Request.URL.Path))
		return
	}
	c.Next()
}

func (a *API) version(c *gin.Context) {
	c.String(http.StatusOK, a.cfg.Version)
}

func (a *API) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": gin.H{
			"semver":     a.cfg.Version,
			"major":      4,
			"minor":      0,
			"patch":      0,
			"preRelease": nil,
			"build":      nil,
		},
		"buildTime":      0,
		"git":            gin.H{"branch": "main", "commit": "unknown", "commitTime": 0},
		"jvm":            "n/a",
		"lavaplayer":     "n/a",
		"runtime":        runtime.Version(),
		"sourceManagers": a.sources.Names(),
		"filters":        protocol.FilterNames(),
		"plugins":        []any{},
	})
}

func (a *API) nodeStats(c *gin.Context) {
	stats := a.stats.Collect(nil)
	stats.Op = ""
	c.JSON(http.StatusOK, stats)
}

func (a *API) loadTracks(c *gin.Context) {
	identifier := c.Query("identifier")
	if identifier == "" {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", "missing identifier", c.Request.URL.Path))
		return
	}
	a.logger.Infof("load tracks request: identifier=%q", identifier)

	result := a.sources.Load(identifier)
	switch result.Type {
	case sources.LoadTypeTrack:
		c.JSON(http.StatusOK, gin.H{"loadType": "track", "data": result.Track})
	case sources.LoadTypePlaylist:
		c.JSON(http.StatusOK, gin.H{"loadType": "playlist", "data": gin.H{
			"info": gin.H{
				"name":          result.Playlist.Name,
				"selectedTrack": result.Playlist.SelectedTrack,
			},
			"pluginInfo": gin.H{},
			"tracks":     result.Playlist.Tracks,
		}})
	case sources.LoadTypeSearch:
		c.JSON(http.StatusOK, gin.H{"loadType": "search", "data": result.Tracks})
	case sources.LoadTypeError:
		c.JSON(http.StatusOK, gin.H{"loadType": "error", "data": result.Error})
	default:
		c.JSON(http.StatusOK, gin.H{"loadType": "empty", "data": nil})
	}
}

func (a *API) decodeTrack(c *gin.Context) {
	encoded := c.Query("encodedTrack")
	info, err := protocol.DecodeTrack(encoded)
	if err != nil {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", err.Error(), c.Request.URL.Path))
		return
	}
	c.JSON(http.StatusOK, protocol.Track{Encoded: encoded, Info: info, PluginInfo: map[string]any{}})
}

func (a *API) decodeTracks(c *gin.Context) {
	var encodedList []string
	if err := c.ShouldBindJSON(&encodedList); err != nil {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", err.Error(), c.Request.URL.Path))
		return
	}
	out := make([]protocol.Track, 0, len(encodedList))
	for _, encoded := range encodedList {
		info, err := protocol.DecodeTrack(encoded)
		if err != nil {
			c.JSON(http.StatusBadRequest,
				protocol.NewRESTError(http.StatusBadRequest, "Bad Request", err.Error(), c.Request.URL.Path))
			return
		}
		out = append(out, protocol.Track{Encoded: encoded, Info: info, PluginInfo: map[string]any{}})
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) routePlannerStatus(c *gin.Context) {
	status := a.planner.Status()
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"class": nil, "details": nil})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) routePlannerFreeAddress(c *gin.Context) {
	var body struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Address == "" {
		c.JSON(http.StatusBadRequest,
			protocol.NewRESTError(http.StatusBadRequest, "Bad Request", "missing address", c.Request.URL.Path))
		return
	}
	a.planner.FreeAddress(body.Address)
	c.Status(http.StatusNoContent)
}

func (a *API) routePlannerFreeAll(c *gin.Context) {
	a.planner.FreeAll()
	c.Status(http.StatusNoContent)
}
