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
	chunkSize            = 512 * 1024
	prefetchChunks       = 32 // sliding window ahead of the cursor
	maxConcurrentFetches = 6
	// Chunks older than cursor−evictKeep are dropped to cap memory.
	evictKeep = 4
)

type chunkStatus int

const (
	chunkEmpty chunkStatus = iota
	chunkDownloading
	chunkReady
)

type chunkEntry struct {
	status  chunkStatus
	data    []byte
	retries int
}

type segmentedShared struct {
	mu   sync.Mutex
	cond *sync.Cond

	chunks     map[int64]*chunkEntry
	cursor     int64
	totalLen   int64
	terminated bool
	fatalErr   error
}

// SegmentedReader downloads fixed-size chunks with a pool of workers racing
// range requests across a sliding window ahead of the read cursor. Readers
// block on the shared condition until the chunk under the cursor is ready.
type SegmentedReader struct {
	logger      commons.Logger
	pos         int64
	length      int64
	contentType string
	shared      *segmentedShared
	closed      bool
}

func newSegmentedReader(logger commons.Logger, client *resty.Client, url string) (*SegmentedReader, error) {
	// Initial bounded request establishes length and fills chunk 0.
	resp, err := fetchWithRetry(client, url, 0, chunkSize)
	if err != nil {
		return nil, err
	}

	length, ok := contentLength(resp)
	if !ok {
		drain(resp)
		return nil, errors.New("segmented reader requires a known length")
	}
	contentType := resp.Header().Get("Content-Type")

	body := resp.RawBody()
	first := make([]byte, 0, chunkSize)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		first = append(first, buf[:n]...)
		if rerr != nil {
			break
		}
	}
	_ = body.Close()

	shared := &segmentedShared{
		chunks:   map[int64]*chunkEntry{0: {status: chunkReady, data: first}},
		totalLen: length,
	}
	shared.cond = sync.NewCond(&shared.mu)

	logger.Infof("opened segmented reader: %s (len=%d, type=%s)", url, length, contentType)

	for i := 0; i < maxConcurrentFetches; i++ {
		go fetchWorker(logger, shared, client, url)
	}

	return &SegmentedReader{
		logger:      logger,
		length:      length,
		contentType: contentType,
		shared:      shared,
	}, nil
}

// fetchWorker claims one chunk at a time: the cursor chunk first, then the
// earliest unclaimed chunk inside the prefetch window.
func fetchWorker(logger commons.Logger, s *segmentedShared, client *resty.Client, url string) {
	for {
		s.mu.Lock()
		if s.terminated {
			s.mu.Unlock()
			return
		}

		cursorChunk := s.cursor / chunkSize
		target := int64(-1)

		for i := int64(0); i < prefetchChunks; i++ {
			idx := cursorChunk + i
			if idx*chunkSize >= s.totalLen {
				break
			}
			entry, ok := s.chunks[idx]
			if !ok {
				entry = &chunkEntry{}
				s.chunks[idx] = entry
			}
			if entry.status == chunkEmpty {
				entry.status = chunkDownloading
				target = idx
				break
			}
		}

		if target < 0 {
			// Nothing claimable: park briefly so cursor moves wake us.
			waitWithTimeout(s.cond, 50*time.Millisecond)
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		offset := target * chunkSize
		size := int64(chunkSize)
		if offset+size > s.totalLen {
			size = s.totalLen - offset
		}

		data, err := downloadChunk(client, url, offset, size)

		s.mu.Lock()
		entry := s.chunks[target]
		if entry == nil {
			s.mu.Unlock()
			continue
		}
		if err != nil {
			entry.status = chunkEmpty
			entry.retries++
			if entry.retries >= maxFetchRetries {
				// One chunk exhausting its retries poisons the source.
				s.fatalErr = errors.Join(ErrSourceFailed, err)
				s.terminated = true
			}
			logger.Warnf("segmented chunk %d fetch failed (retry %d/%d): %v",
				target, entry.retries, maxFetchRetries, err)
			backoff := backoffFor(entry.retries)
			s.cond.Broadcast()
			s.mu.Unlock()
			time.Sleep(backoff)
			continue
		}
		entry.status = chunkReady
		entry.data = data
		entry.retries = 0
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func downloadChunk(client *resty.Client, url string, offset, size int64) ([]byte, error) {
	resp, err := fetchRange(client, url, offset, size)
	if err != nil {
		if errors.Is(err, errRangeNotSatisfiable) {
			return nil, nil // end of known length: empty, not fatal
		}
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	data := make([]byte, 0, size)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := readWithTimeout(body, buf, readTimeout)
		data = append(data, buf[:n]...)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return data, nil
			}
			return nil, rerr
		}
	}
}

// waitWithTimeout emulates a timed condition wait; the caller holds s.mu.
func waitWithTimeout(cond *sync.Cond, d time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		cond.Broadcast()
		close(done)
	})
	cond.Wait()
	if !timer.Stop() {
		<-done
	}
}

func (r *SegmentedReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	if r.pos >= r.length {
		return 0, io.EOF
	}

	s := r.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = r.pos

	for {
		if s.fatalErr != nil {
			return 0, s.fatalErr
		}

		idx := r.pos / chunkSize
		offsetInChunk := int(r.pos % chunkSize)

		entry, ok := s.chunks[idx]
		if !ok {
			s.chunks[idx] = &chunkEntry{}
			s.cond.Broadcast()
			continue
		}

		switch entry.status {
		case chunkReady:
			if offsetInChunk >= len(entry.data) {
				if r.pos >= r.length {
					return 0, io.EOF
				}
				// Short chunk: step to the next chunk boundary.
				r.pos = (idx + 1) * chunkSize
				s.cursor = r.pos
				continue
			}
			n := copy(p, entry.data[offsetInChunk:])
			r.pos += int64(n)
			s.cursor = r.pos

			// Evict chunks far behind the cursor.
			if idx > evictKeep*2 {
				for k := range s.chunks {
					if k < idx-evictKeep {
						delete(s.chunks, k)
					}
				}
			}
			return n, nil
		default:
			s.cond.Broadcast()
			s.cond.Wait()
		}
	}
}

func (r *SegmentedReader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.length + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if target < 0 {
		return 0, errors.New("negative seek")
	}
	if target > r.length {
		return 0, ErrSeekBeyondEnd
	}

	r.pos = target
	s := r.shared
	s.mu.Lock()
	s.cursor = target
	s.cond.Broadcast()
	s.mu.Unlock()
	return r.pos, nil
}

func (r *SegmentedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	s := r.shared
	s.mu.Lock()
	s.terminated = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func (r *SegmentedReader) Len() (int64, bool) { return r.length, true }

func (r *SegmentedReader) ContentType() string { return r.contentType }
