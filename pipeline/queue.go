// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package pipeline connects a byte producer with a byte consumer that run
// at their own pace.
package pipeline

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by [Queue.Write] after the write side was closed.
var ErrClosed = errors.New("write to closed queue")

// Queue is an ordered byte queue with a writer side ([io.Writer]) and a
// reader side ([io.Reader]). Every Write enqueues a private copy of its
// argument as one chunk. With a positive depth, Write blocks while depth
// chunks are queued and not yet read.
//
// The end of the stream is signaled explicitly with Close or
// CloseWithError. Readers see io.EOF (or the error) only after every
// queued byte was delivered.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	depth  int

	closed bool
	werr   error // error handed to the reader after draining
	rerr   error // error handed to writers after the reader gave up
}

// NewQueue returns an empty queue holding at most depth chunks. A depth
// of zero or less means the queue never blocks writers.
func NewQueue(depth int) *Queue {
	q := &Queue{depth: depth}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write enqueues a copy of p.
func (q *Queue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.depth > 0 && len(q.chunks) >= q.depth && q.rerr == nil && !q.closed {
		q.cond.Wait()
	}
	if q.rerr != nil {
		return 0, q.rerr
	}
	if q.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	q.chunks = append(q.chunks, append([]byte(nil), p...))
	q.cond.Broadcast()
	return len(p), nil
}

// Read fills p from the front of the queue. It blocks while the queue is
// empty and the write side is still open.
func (q *Queue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.chunks) == 0 && !q.closed && q.rerr == nil {
		q.cond.Wait()
	}
	if q.rerr != nil {
		return 0, q.rerr
	}
	if len(q.chunks) == 0 {
		if q.werr != nil {
			return 0, q.werr
		}
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	n := 0
	for n < len(p) && len(q.chunks) > 0 {
		k := copy(p[n:], q.chunks[0])
		n += k
		if k == len(q.chunks[0]) {
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
		} else {
			q.chunks[0] = q.chunks[0][k:]
		}
	}
	q.cond.Broadcast()
	return n, nil
}

// Close marks the end of the stream. Queued bytes stay readable.
func (q *Queue) Close() error {
	return q.CloseWithError(nil)
}

// CloseWithError marks the end of the stream; once the queue is drained
// the reader receives err instead of io.EOF. Only the first close counts.
func (q *Queue) CloseWithError(err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.werr = err
	}
	q.cond.Broadcast()
	return nil
}

// CloseRead abandons the reader side. Queued bytes are dropped and every
// pending or later Write fails with err, or io.ErrClosedPipe if err is nil.
func (q *Queue) CloseRead(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rerr == nil {
		q.rerr = err
	}
	q.chunks = nil
	q.cond.Broadcast()
	return nil
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
