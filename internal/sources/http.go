// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package sources

import (
	"fmt"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/wavelink/internal/audio/source"
	"github.com/rapidaai/wavelink/internal/protocol"
	"github.com/rapidaai/wavelink/pkg/commons"
)

// HTTPSource serves direct media URLs, including ICY/shoutcast streams.
type HTTPSource struct {
	logger commons.Logger
	client *resty.Client
}

func NewHTTPSource(logger commons.Logger) *HTTPSource {
	return &HTTPSource{
		logger: logger,
		client: resty.New().
			SetDoNotParseResponse(true).
			SetHeader("Accept", "*/*"),
	}
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) CanLoad(identifier string) bool {
	return strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://")
}

// Load probes the URL with a ranged GET for byte 0. The track is a
// fixed-length file only when the response carries a Content-Range total
// and no ICY headers; everything else, including a plain 200 with a
// Content-Length, is treated as a stream.
func (s *HTTPSource) Load(identifier string) LoadResult {
	resp, err := s.client.R().
		SetHeader("Range", "bytes=0-0").
		Get(identifier)
	if err != nil {
		return LoadResult{Type: LoadTypeError, Error: &protocol.Exception{
			Message:  fmt.Sprintf("failed to probe url: %v", err),
			Severity: protocol.SeverityCommon,
			Cause:    err.Error(),
		}}
	}
	defer func() {
		if body := resp.RawBody(); body != nil {
			_ = body.Close()
		}
	}()

	code := resp.StatusCode()
	if code != http.StatusOK && code != http.StatusPartialContent {
		return LoadResult{Type: LoadTypeError, Error: &protocol.Exception{
			Message:  fmt.Sprintf("url returned status %d", code),
			Severity: protocol.SeverityCommon,
			Cause:    "http status",
		}}
	}

	isStream := true
	var lengthMs uint64
	if cr := resp.Header().Get("Content-Range"); cr != "" {
		if idx := strings.LastIndexByte(cr, '/'); idx >= 0 {
			if total, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil && total > 0 {
				isStream = false
				_ = total
			}
		}
	}
	if icy := resp.Header().Get("icy-name"); icy != "" {
		isStream = true
	}

	title := path.Base(identifier)
	if q := strings.IndexByte(title, '?'); q >= 0 {
		title = title[:q]
	}
	if title == "" || title == "." || title == "/" {
		title = "Unknown Title"
	}

	uri := identifier
	info := protocol.TrackInfo{
		Identifier: identifier,
		IsSeekable: !isStream,
		Author:     "Unknown Author",
		Length:     lengthMs,
		IsStream:   isStream,
		Title:      title,
		URI:        &uri,
		SourceName: s.Name(),
	}
	track := protocol.NewTrack(info)
	return LoadResult{Type: LoadTypeTrack, Track: &track}
}

// OpenTrack picks the segmented reader for fixed-length media and the
// prefetch reader for live streams.
func (s *HTTPSource) OpenTrack(info protocol.TrackInfo, localAddr net.IP) (source.Reader, error) {
	strategy := source.StrategySegmented
	if info.IsStream {
		strategy = source.StrategyPrefetch
	}
	return source.Open(s.logger, info.Identifier, strategy, source.Options{LocalAddr: localAddr})
}
