// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package sources

import (
	"fmt"
	"mime"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rapidaai/wavelink/internal/audio/source"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// LocalSource plays files from the node's own filesystem. Disabled by
// default; identifiers are plain paths or local: prefixed.
type LocalSource struct {
	logger commons.Logger
}

func NewLocalSource(logger commons.Logger) *LocalSource {
	return &LocalSource{logger: logger}
}

func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) CanLoad(identifier string) bool {
	if strings.HasPrefix(identifier, "local:") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(identifier))
	switch ext {
	case ".mp3", ".ogg", ".opus", ".flac", ".wav":
		return true
	}
	return false
}

func (s *LocalSource) Load(identifier string) LoadResult {
	p := strings.TrimPrefix(identifier, "local:")
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return LoadResult{Type: LoadTypeError, Error: &protocol.Exception{
			Message:  fmt.Sprintf("file not found: %s", p),
			Severity: protocol.SeverityCommon,
			Cause:    "stat failed",
		}}
	}

	title := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	info := protocol.TrackInfo{
		Identifier: identifier,
		IsSeekable: true,
		Author:     "Unknown Author",
		Title:      title,
		SourceName: s.Name(),
	}
	track := protocol.NewTrack(info)
	return LoadResult{Type: LoadTypeTrack, Track: &track}
}

func (s *LocalSource) OpenTrack(info protocol.TrackInfo, _ net.IP) (source.Reader, error) {
	p := strings.TrimPrefix(info.Identifier, "local:")
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReader{
		File:        f,
		size:        fi.Size(),
		contentType: mime.TypeByExtension(filepath.Ext(p)),
	}, nil
}

// fileReader adapts *os.File to the source.Reader contract.
type fileReader struct {
	*os.File
	size        int64
	contentType string
}

func (r *fileReader) Len() (int64, bool)  { return r.size, true }
func (r *fileReader) ContentType() string { return r.contentType }
