// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package zstream

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compress reads uncompressed data from src in chunks of [CompressInSize]
// and writes a zstandard stream to dst. The end of src finishes the frame,
// including the integrity footer when checksums are enabled. It returns the
// number of compressed bytes written to dst.
//
// A read error of src stops compression immediately with [ErrIO]; output
// already pushed to dst is not revoked.
func Compress(ctx context.Context, src io.Reader, dst io.Writer, opts ...Option) (int64, error) {
	o := newOptions(opts)

	level := o.level
	if level == 0 {
		level = DefaultLevel
	}
	if level < MinLevel || level > MaxLevel {
		return 0, fmt.Errorf("%w: compression level %d is not within [%d, %d]", ErrEngineInit, level, MinLevel, MaxLevel)
	}

	out := newOutputBuffer(dst, CompressOutSize)
	enc, err := zstd.NewWriter(out,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(o.checksum),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngineInit, err)
	}

	// classify errors returned by the engine: a failing sink is an i/o
	// error, everything else comes from the engine itself
	engineErr := func(err error) error {
		if out.err != nil {
			return fmt.Errorf("%w: cannot write output: %w", ErrIO, out.err)
		}
		return fmt.Errorf("%w: %w", ErrEngineStream, err)
	}

	in := make([]byte, CompressInSize)
	for {
		if err := ctx.Err(); err != nil {
			return out.n, err
		}

		n, rerr := io.ReadFull(src, in)
		if n > 0 {
			if _, err := enc.Write(in[:n]); err != nil {
				return out.n, engineErr(err)
			}
		}

		switch rerr {
		case nil:
			continue
		case io.EOF, io.ErrUnexpectedEOF:
			// last chunk: flush the frame and its footer
			if err := enc.Close(); err != nil {
				return out.n, engineErr(err)
			}
			if err := out.Flush(); err != nil {
				return out.n, fmt.Errorf("%w: cannot write output: %w", ErrIO, err)
			}
			return out.n, nil
		default:
			return out.n, fmt.Errorf("%w: cannot read input: %w", ErrIO, rerr)
		}
	}
}
