// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package zstream compresses and decompresses zstandard streams chunk by
// chunk. Each call owns exactly one input and one output buffer, sized by
// the recommended streaming sizes of the reference zstandard library, and
// never grows them.
package zstream

import (
	"errors"
	"io"
)

// Buffer sizes recommended by the reference zstandard library for
// streaming (ZSTD_CStreamInSize, ZSTD_CStreamOutSize, ZSTD_DStreamInSize
// and ZSTD_DStreamOutSize).
const (
	CompressInSize    = 131072
	CompressOutSize   = 131591
	DecompressInSize  = 131075
	DecompressOutSize = 131072
)

// Compression levels. Higher levels trade speed for ratio.
const (
	MinLevel     = 1
	MaxLevel     = 22
	DefaultLevel = 3
)

var (
	// ErrEngineInit is returned when the engine cannot be created or
	// rejects a configuration parameter.
	ErrEngineInit = errors.New("compression engine initialization failed")

	// ErrEngineStream is returned when the engine reports a malformed stream.
	// The engine's message follows unchanged.
	ErrEngineStream = errors.New("compression engine stream error")

	// ErrEmptyInput is returned when decompression reads no byte at all.
	ErrEmptyInput = errors.New("input is empty")

	// ErrIO is returned when reading the source or writing the sink fails.
	ErrIO = errors.New("i/o error")
)

// Option adjusts a compression or decompression call.
type Option func(*options)

type options struct {
	level     int
	checksum  bool
	maxOutput int64
}

// WithLevel sets the compression level. Zero selects [DefaultLevel].
func WithLevel(level int) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithChecksum enables or disables the integrity footer of compressed
// frames.
func WithChecksum(enable bool) Option {
	return func(o *options) {
		o.checksum = enable
	}
}

// WithMaxOutput stops decompression successfully once n bytes have been
// written. A negative value disables the limit.
func WithMaxOutput(n int64) Option {
	return func(o *options) {
		o.maxOutput = n
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		level:     DefaultLevel,
		checksum:  true,
		maxOutput: -1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// outputBuffer collects engine output in a fixed buffer and pushes it to
// the sink whenever the buffer is full or Flush is called.
type outputBuffer struct {
	w   io.Writer
	buf []byte
	n   int64
	err error
}

func newOutputBuffer(w io.Writer, size int) *outputBuffer {
	return &outputBuffer{w: w, buf: make([]byte, 0, size)}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if b.err != nil {
			return written, b.err
		}
		k := copy(b.buf[len(b.buf):cap(b.buf)], p)
		b.buf = b.buf[:len(b.buf)+k]
		p = p[k:]
		written += k
		if len(b.buf) == cap(b.buf) {
			b.Flush()
		}
	}
	return written, b.err
}

// Flush pushes buffered output to the sink.
func (b *outputBuffer) Flush() error {
	if b.err != nil || len(b.buf) == 0 {
		return b.err
	}
	n, err := b.w.Write(b.buf)
	b.n += int64(n)
	if err == nil && n < len(b.buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		b.err = err
		return err
	}
	b.buf = b.buf[:0]
	return nil
}

// inputBuffer pulls source data into a fixed buffer and serves reads
// from it.
type inputBuffer struct {
	r          io.Reader
	buf        []byte
	start, end int
	n          int64
	eof        bool
	err        error
}

func newInputBuffer(r io.Reader, size int) *inputBuffer {
	return &inputBuffer{r: r, buf: make([]byte, size)}
}

// fill refills the buffer once it is drained. Data returned together with
// an error is served before the error.
func (b *inputBuffer) fill() error {
	for b.start == b.end {
		if b.err != nil {
			return b.err
		}
		if b.eof {
			return io.EOF
		}
		n, err := b.r.Read(b.buf)
		b.start, b.end = 0, n
		b.n += int64(n)
		switch {
		case err == io.EOF:
			b.eof = true
		case err != nil:
			b.err = err
		}
	}
	return nil
}

func (b *inputBuffer) Read(p []byte) (int, error) {
	if err := b.fill(); err != nil {
		return 0, err
	}
	n := copy(p, b.buf[b.start:b.end])
	b.start += n
	return n, nil
}
