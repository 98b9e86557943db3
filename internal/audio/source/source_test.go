// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package source

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/wavelink/pkg/commons"
)

// pattern generates a deterministic byte sequence so any offset error
// shows up as a content mismatch.
func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte((i*7 + i/251) & 0xFF)
	}
	return out
}

func mediaServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		http.ServeContent(w, r, "media.mp3", time.Unix(0, 0), bytes.NewReader(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPrefetchReaderReadsAll(t *testing.T) {
	body := pattern(300 * 1024)
	srv := mediaServer(t, body)

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategyPrefetch, Options{})
	require.NoError(t, err)
	defer r.Close()

	length, known := r.Len()
	assert.True(t, known)
	assert.Equal(t, int64(len(body)), length)
	assert.Equal(t, "audio/mpeg", r.ContentType())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body, got), "streamed bytes must match the origin")
}

func TestPrefetchReaderForwardSeek(t *testing.T) {
	body := pattern(256 * 1024)
	srv := mediaServer(t, body)

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategyPrefetch, Options{})
	require.NoError(t, err)
	defer r.Close()

	head := make([]byte, 1024)
	_, err = io.ReadFull(r, head)
	require.NoError(t, err)
	assert.Equal(t, body[:1024], head)

	// Forward jump inside (or just past) the buffered window.
	pos, err := r.Seek(128*1024, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(128*1024), pos)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body[128*1024:], rest))
}

func TestPrefetchReaderBackwardSeek(t *testing.T) {
	body := pattern(64 * 1024)
	srv := mediaServer(t, body)

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategyPrefetch, Options{})
	require.NoError(t, err)
	defer r.Close()

	_, err = io.CopyN(io.Discard, r, 32*1024)
	require.NoError(t, err)

	_, err = r.Seek(100, io.SeekStart)
	require.NoError(t, err)

	chunk := make([]byte, 64)
	_, err = io.ReadFull(r, chunk)
	require.NoError(t, err)
	assert.Equal(t, body[100:164], chunk)
}

func TestPrefetchReaderSeekBeyondEnd(t *testing.T) {
	srv := mediaServer(t, pattern(4096))

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategyPrefetch, Options{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Seek(1<<20, io.SeekStart)
	assert.ErrorIs(t, err, ErrSeekBeyondEnd)
}

func TestSegmentedReaderReadsAll(t *testing.T) {
	body := pattern(3*chunkSize/2 + 100) // spans two chunks, the second one short
	srv := mediaServer(t, body)

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategySegmented, Options{})
	require.NoError(t, err)
	defer r.Close()

	length, known := r.Len()
	assert.True(t, known)
	assert.Equal(t, int64(len(body)), length)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body, got))
}

func TestSegmentedReaderSeek(t *testing.T) {
	body := pattern(chunkSize + 5000)
	srv := mediaServer(t, body)

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategySegmented, Options{})
	require.NoError(t, err)
	defer r.Close()

	target := int64(chunkSize - 100)
	pos, err := r.Seek(target, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, target, pos)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body[target:], rest))
}

func TestSegmentedReaderSeekBeyondEnd(t *testing.T) {
	srv := mediaServer(t, pattern(8192))

	r, err := Open(commons.NewNopLogger(), srv.URL, StrategySegmented, Options{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Seek(1<<30, io.SeekStart)
	assert.ErrorIs(t, err, ErrSeekBeyondEnd)
}

func TestFetchRangeNotSatisfiableIsEOF(t *testing.T) {
	// A 416 at the end of a known length must surface as the sentinel
	// the readers treat as silent EOF.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	client := newStreamClient(Options{})
	_, err := fetchRange(client, srv.URL, 9999, 0)
	assert.ErrorIs(t, err, errRangeNotSatisfiable)
}

func TestBackoffCapped(t *testing.T) {
	assert.Equal(t, retryBackoffBase, backoffFor(1))
	assert.Equal(t, 2*retryBackoffBase, backoffFor(2))
	assert.Equal(t, 8*retryBackoffBase, backoffFor(4))
	// The multiplier never exceeds 8×.
	assert.Equal(t, 8*retryBackoffBase, backoffFor(10))
}
