// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package sources resolves track identifiers through a set of source
// plugins and hands playable byte streams to the player. Only the http
// and local plugins ship here; everything else is out of scope for this
// node.
package sources

import (
	"net"
	"strings"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/audio/source"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// LoadType mirrors the Lavalink loadtracks result tag.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// LoadResult is the outcome of resolving an identifier. Exactly one of
// the payload fields matches the type.
type LoadResult struct {
	Type     LoadType
	Track    *protocol.Track
	Tracks   []protocol.Track
	Playlist *Playlist
	Error    *protocol.Exception
}

type Playlist struct {
	Name          string
	SelectedTrack int
	Tracks        []protocol.Track
}

// Plugin is one identifier namespace. The core never catches across this
// boundary: plugins return results, never panic.
type Plugin interface {
	Name() string
	// CanLoad reports whether the identifier belongs to this plugin.
	CanLoad(identifier string) bool
	// Load resolves the identifier into tracks.
	Load(identifier string) LoadResult
	// OpenTrack acquires the byte stream for a previously resolved track.
	OpenTrack(info protocol.TrackInfo, localAddr net.IP) (source.Reader, error)
}

// Manager routes identifiers to the first plugin that claims them.
type Manager struct {
	logger  commons.Logger
	plugins []Plugin
}

func NewManager(logger commons.Logger, cfg config.SourcesConfig) *Manager {
	m := &Manager{logger: logger}
	if cfg.HTTP {
		m.plugins = append(m.plugins, NewHTTPSource(logger))
	}
	if cfg.Local {
		m.plugins = append(m.plugins, NewLocalSource(logger))
	}
	return m
}

// Names lists enabled plugin names for /v4/info.
func (m *Manager) Names() []string {
	out := make([]string, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p.Name())
	}
	return out
}

// Load resolves an identifier. Clients sometimes wrap URLs in <>.
func (m *Manager) Load(identifier string) LoadResult {
	clean := strings.TrimSpace(identifier)
	clean = strings.TrimPrefix(clean, "<")
	clean = strings.TrimSuffix(clean, ">")

	for _, p := range m.plugins {
		if p.CanLoad(clean) {
			return p.Load(clean)
		}
	}
	return LoadResult{Type: LoadTypeEmpty}
}

// Open acquires the byte stream for a resolved track.
func (m *Manager) Open(info protocol.TrackInfo, localAddr net.IP) (source.Reader, error) {
	for _, p := range m.plugins {
		if p.Name() == info.SourceName {
			return p.OpenTrack(info, localAddr)
		}
	}
	// Fall back on identifier matching for tracks encoded elsewhere.
	for _, p := range m.plugins {
		if p.CanLoad(info.Identifier) {
			return p.OpenTrack(info, localAddr)
		}
	}
	return nil, ErrNoSource
}

// ErrNoSource marks an identifier no plugin can serve.
var ErrNoSource = protocolError("no source plugin for identifier")

type protocolError string

func (e protocolError) Error() string { return string(e) }
