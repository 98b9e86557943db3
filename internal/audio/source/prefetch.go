// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package source

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rapidaai/wavelink/pkg/commons"
)

const (
	// prefetchHighWater pauses the worker once this much is buffered ahead.
	prefetchHighWater = 8 * 1024 * 1024
	// socketSkipLimit is the largest forward seek served by draining the
	// live socket instead of reconnecting (avoids ~300 ms TCP teardown).
	socketSkipLimit = 1 * 1024 * 1024
	prefetchChunk   = 128 * 1024
)

type prefetchCmd int

const (
	cmdContinue prefetchCmd = iota
	cmdSeek
	cmdStop
)

// prefetchShared is the state exchanged between the foreground reader and
// the single background fetch goroutine, guarded by mu/cond.
type prefetchShared struct {
	mu   sync.Mutex
	cond *sync.Cond

	nextBuf  []byte
	done     bool
	needData bool
	cmd      prefetchCmd
	seekTo   int64
	fatalErr error
}

// PrefetchReader streams one HTTP connection through a double buffer: the
// foreground owns an active buffer, the worker fills the next one. Forward
// seeks inside buffered data are pointer bumps; small forward seeks consume
// the live socket; anything else reconnects with a Range request.
type PrefetchReader struct {
	logger commons.Logger
	client *resty.Client
	url    string

	pos         int64
	length      int64
	hasLength   bool
	contentType string

	buf    []byte
	bufPos int
	shared *prefetchShared
	closed bool
}

func newPrefetchReader(logger commons.Logger, client *resty.Client, url string) (*PrefetchReader, error) {
	resp, err := fetchWithRetry(client, url, 0, 0)
	if err != nil {
		return nil, err
	}

	r := &PrefetchReader{
		logger:      logger,
		client:      client,
		url:         url,
		contentType: resp.Header().Get("Content-Type"),
		buf:         make([]byte, 0, prefetchChunk*2),
		shared:      &prefetchShared{nextBuf: make([]byte, 0, prefetchChunk*2), needData: true},
	}
	r.length, r.hasLength = contentLength(resp)
	r.shared.cond = sync.NewCond(&r.shared.mu)

	logger.Infof("opened prefetch reader: %s (len=%d known=%v)", url, r.length, r.hasLength)

	go r.prefetchLoop(resp, 0)
	return r, nil
}

func fetchWithRetry(client *resty.Client, url string, offset, size int64) (*resty.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxFetchRetries; attempt++ {
		resp, err := fetchRange(client, url, offset, size)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, errRangeNotSatisfiable) {
			return nil, err
		}
		lastErr = err
		time.Sleep(backoffFor(attempt))
	}
	return nil, errors.Join(ErrSourceFailed, lastErr)
}

// prefetchLoop runs on its own goroutine for the reader's lifetime.
func (r *PrefetchReader) prefetchLoop(initial *resty.Response, startPos int64) {
	var body io.ReadCloser
	if initial != nil {
		body = initial.RawBody()
	}
	defer func() {
		if body != nil {
			_ = body.Close()
		}
	}()

	pos := startPos
	chunk := make([]byte, prefetchChunk)
	retries := 0
	s := r.shared

	for {
		// 1. Command window: wait until data is wanted or a command arrives.
		s.mu.Lock()
		for s.cmd == cmdContinue && !s.needData && !s.done {
			s.cond.Wait()
		}
		cmd, seekTo := s.cmd, s.seekTo
		if cmd != cmdContinue {
			s.cmd = cmdContinue
			s.done = false
			s.nextBuf = s.nextBuf[:0]
			s.needData = true
		}
		s.mu.Unlock()

		switch cmd {
		case cmdStop:
			return
		case cmdSeek:
			forward := seekTo - pos
			if forward > 0 && forward <= socketSkipLimit && body != nil {
				// Drain the live socket instead of tearing down TCP.
				if n, err := io.CopyN(io.Discard, body, forward); err == nil && n == forward {
					pos = seekTo
				} else {
					_ = body.Close()
					body = nil
					pos = seekTo
				}
			} else {
				if body != nil {
					_ = body.Close()
					body = nil
				}
				pos = seekTo
			}
		}

		// 2. Ensure a connection at pos.
		if body == nil {
			if r.hasLength && pos >= r.length {
				r.finish()
				continue
			}
			resp, err := fetchRange(r.client, r.url, pos, 0)
			if errors.Is(err, errRangeNotSatisfiable) {
				// End of known length: clean EOF, never an error.
				r.finish()
				continue
			}
			if err != nil {
				retries++
				if retries > maxFetchRetries {
					r.fail(errors.Join(ErrSourceFailed, err))
					return
				}
				r.logger.Warnf("prefetch fetch failed (attempt %d/%d): %v", retries, maxFetchRetries, err)
				if r.sleepInterruptible(backoffFor(retries)) {
					return
				}
				continue
			}
			retries = 0
			body = resp.RawBody()
		}

		// 3. Read one chunk with a read deadline; timeouts reconnect.
		n, err := readWithTimeout(body, chunk, readTimeout)
		if n > 0 {
			pos += int64(n)
			retries = 0
			s.mu.Lock()
			if s.cmd == cmdContinue { // drop the batch if a seek raced us
				s.nextBuf = append(s.nextBuf, chunk[:n]...)
				if len(s.nextBuf) >= prefetchHighWater {
					s.needData = false
				}
				s.cond.Broadcast()
			}
			s.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = body.Close()
				body = nil
				r.finish()
				continue
			}
			r.logger.Warnf("prefetch read failed: %v", err)
			_ = body.Close()
			body = nil
			retries++
			if retries > maxFetchRetries {
				r.fail(errors.Join(ErrSourceFailed, err))
				return
			}
			if r.sleepInterruptible(backoffFor(retries)) {
				return
			}
		}
	}
}

// finish marks EOF and parks until a new command arrives.
func (r *PrefetchReader) finish() {
	s := r.shared
	s.mu.Lock()
	s.done = true
	s.cond.Broadcast()
	for s.done && s.cmd == cmdContinue {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

func (r *PrefetchReader) fail(err error) {
	s := r.shared
	s.mu.Lock()
	s.fatalErr = err
	s.done = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// sleepInterruptible sleeps the backoff but wakes early on Stop. Returns
// true when the loop must exit.
func (r *PrefetchReader) sleepInterruptible(d time.Duration) bool {
	deadline := time.Now().Add(d)
	s := r.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	for time.Now().Before(deadline) {
		if s.cmd == cmdStop {
			return true
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		s.mu.Lock()
	}
	return s.cmd == cmdStop
}

// readWithTimeout reads from body, forcing an error by closing it when the
// deadline passes. Response bodies have no deadline knob of their own.
func readWithTimeout(body io.ReadCloser, p []byte, d time.Duration) (int, error) {
	timer := time.AfterFunc(d, func() { _ = body.Close() })
	n, err := body.Read(p)
	if !timer.Stop() && err != nil {
		err = errors.Join(err, errors.New("read timeout"))
	}
	return n, err
}

func (r *PrefetchReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	// Serve from the active buffer first.
	if r.bufPos < len(r.buf) {
		n := copy(p, r.buf[r.bufPos:])
		r.bufPos += n
		r.pos += int64(n)
		return n, nil
	}

	s := r.shared
	s.mu.Lock()
	s.needData = true
	s.cond.Broadcast()
	for len(s.nextBuf) == 0 && !s.done {
		s.cond.Wait()
	}
	if s.fatalErr != nil {
		err := s.fatalErr
		s.mu.Unlock()
		return 0, err
	}
	if len(s.nextBuf) == 0 && s.done {
		s.mu.Unlock()
		return 0, io.EOF
	}

	// Instant swap of active and next buffers.
	r.buf, s.nextBuf = s.nextBuf, r.buf[:0]
	r.bufPos = 0
	s.needData = true
	s.cond.Broadcast()
	s.mu.Unlock()

	return r.Read(p)
}

func (r *PrefetchReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		if !r.hasLength {
			return 0, errors.New("stream length unknown")
		}
		target = r.length + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if target < 0 {
		return 0, errors.New("negative seek")
	}
	if r.hasLength && target > r.length {
		return 0, ErrSeekBeyondEnd
	}
	if target == r.pos {
		return r.pos, nil
	}

	forward := target - r.pos
	s := r.shared
	s.mu.Lock()

	bufRemaining := int64(len(r.buf) - r.bufPos)
	nextRemaining := int64(len(s.nextBuf))

	// Forward seeks within buffered data are pure pointer bumps.
	if forward > 0 && forward <= bufRemaining+nextRemaining {
		if forward <= bufRemaining {
			r.bufPos += int(forward)
		} else {
			jump := forward - bufRemaining
			r.buf, s.nextBuf = s.nextBuf, r.buf[:0]
			r.bufPos = int(jump)
			s.needData = true
			s.cond.Broadcast()
		}
		r.pos = target
		s.mu.Unlock()
		return r.pos, nil
	}

	// Outside buffered data: delegate to the worker.
	r.buf = r.buf[:0]
	r.bufPos = 0
	r.pos = target
	s.cmd = cmdSeek
	s.seekTo = target
	s.nextBuf = s.nextBuf[:0]
	s.done = false
	s.needData = true
	s.cond.Broadcast()
	s.mu.Unlock()

	return r.pos, nil
}

func (r *PrefetchReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	s := r.shared
	s.mu.Lock()
	s.cmd = cmdStop
	s.needData = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func (r *PrefetchReader) Len() (int64, bool) { return r.length, r.hasLength }

func (r *PrefetchReader) ContentType() string { return r.contentType }
