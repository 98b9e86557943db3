// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package source implements the byte-level streaming readers that feed the
// audio processor: a prefetch-thread reader for live/unknown-length streams
// and a parallel-chunk reader for fixed-length media.
package source

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/wavelink/pkg/commons"
)

// Strategy selects the reader implementation.
type Strategy int

const (
	// StrategyPrefetch keeps one connection and a double buffer ahead of
	// the cursor. Best for live streams and unknown lengths.
	StrategyPrefetch Strategy = iota
	// StrategySegmented races ranged chunk downloads across workers. Best
	// for seekable fixed-length media.
	StrategySegmented
)

// Reader is the byte source handed to the audio processor.
type Reader interface {
	io.ReadSeekCloser
	// Len reports the total size when the server advertised one.
	Len() (int64, bool)
	// ContentType is the response MIME type, empty when absent.
	ContentType() string
}

var (
	// ErrSeekBeyondEnd is returned when the target exceeds a known length.
	ErrSeekBeyondEnd = errors.New("seek beyond end of stream")
	// ErrSourceFailed marks a source that exhausted its retries.
	ErrSourceFailed = errors.New("source fatally errored")
)

const (
	maxFetchRetries  = 5
	retryBackoffBase = 200 * time.Millisecond
	retryBackoffCap  = 8 // multiplier cap: base × 2^n, n ≤ 3 → ≤ 8×
	readTimeout      = 5 * time.Second
)

// Options configures reader construction.
type Options struct {
	// LocalAddr binds outbound connections, supplied by the route planner.
	LocalAddr net.IP
	UserAgent string
}

// Open builds a reader for url with the requested strategy.
func Open(logger commons.Logger, url string, strategy Strategy, opts Options) (Reader, error) {
	client := newStreamClient(opts)
	switch strategy {
	case StrategySegmented:
		return newSegmentedReader(logger, client, url)
	default:
		return newPrefetchReader(logger, client, url)
	}
}

// newStreamClient builds a resty client tuned for long-lived body
// streaming: responses are never buffered and the per-request timeout is
// disabled in favour of read deadlines on the consuming side.
func newStreamClient(opts Options) *resty.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if opts.LocalAddr != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: opts.LocalAddr}
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: 15 * time.Second,
		IdleConnTimeout:       30 * time.Second,
	}

	client := resty.New().
		SetTransport(transport).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "*/*").
		SetHeader("Accept-Encoding", "identity")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetRetryCount(0) // retries are handled by the readers
	return client
}

// fetchRange issues a GET with an open-ended Range when offset > 0, or a
// bounded Range when size > 0. A 416 response at or past a known length is
// reported via errRangeNotSatisfiable so callers can treat it as EOF.
func fetchRange(client *resty.Client, url string, offset, size int64) (*resty.Response, error) {
	req := client.R()
	if size > 0 {
		req.SetHeader("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
	} else if offset > 0 {
		req.SetHeader("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("stream fetch: %w", err)
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusOK || code == http.StatusPartialContent:
		return resp, nil
	case code == http.StatusRequestedRangeNotSatisfiable:
		drain(resp)
		return nil, errRangeNotSatisfiable
	default:
		drain(resp)
		return nil, fmt.Errorf("stream fetch failed (%d): %s", code, url)
	}
}

var errRangeNotSatisfiable = errors.New("range not satisfiable")

func drain(resp *resty.Response) {
	if body := resp.RawBody(); body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
		_ = body.Close()
	}
}

// backoffFor returns the sleep before retry attempt n (1-based),
// exponential with a capped multiplier.
func backoffFor(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 3 {
		shift = 3
	}
	return retryBackoffBase * time.Duration(1<<shift)
}

// contentLength extracts a total size from Content-Range (preferred, the
// value after '/') or Content-Length.
func contentLength(resp *resty.Response) (int64, bool) {
	if cr := resp.Header().Get("Content-Range"); cr != "" {
		var total int64
		if _, err := fmt.Sscanf(cr[lastSlash(cr):], "/%d", &total); err == nil {
			return total, true
		}
	}
	if resp.RawResponse != nil && resp.RawResponse.ContentLength > 0 {
		return resp.RawResponse.ContentLength, true
	}
	return 0, false
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return 0
}
