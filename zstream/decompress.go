// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package zstream

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Decompress reads a zstandard stream from src and writes the decompressed
// data to dst in chunks of at most [DecompressOutSize]. It returns the
// number of bytes written to dst.
//
// If [WithMaxOutput] is set, decompression stops successfully as soon as
// the limit is reached, even if compressed input remains. A source that
// delivers no byte at all fails with [ErrEmptyInput]; a malformed or
// truncated stream fails with [ErrEngineStream].
func Decompress(ctx context.Context, src io.Reader, dst io.Writer, opts ...Option) (int64, error) {
	o := newOptions(opts)

	in := newInputBuffer(src, DecompressInSize)
	if err := in.fill(); err != nil {
		if err == io.EOF {
			return 0, ErrEmptyInput
		}
		return 0, fmt.Errorf("%w: cannot read input: %w", ErrIO, err)
	}

	dec, err := zstd.NewReader(in,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngineInit, err)
	}
	defer dec.Close()

	out := make([]byte, DecompressOutSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := dec.Read(out)
		if n > 0 {
			if o.maxOutput >= 0 && total+int64(n) > o.maxOutput {
				n = int(o.maxOutput - total)
			}
			w, err := dst.Write(out[:n])
			total += int64(w)
			if err == nil && w < n {
				err = io.ErrShortWrite
			}
			if err != nil {
				return total, fmt.Errorf("%w: cannot write output: %w", ErrIO, err)
			}
			if o.maxOutput >= 0 && total >= o.maxOutput {
				return total, nil
			}
		}

		switch {
		case rerr == nil:
			continue
		case rerr == io.EOF:
			return total, nil
		case in.err != nil:
			return total, fmt.Errorf("%w: cannot read input: %w", ErrIO, in.err)
		default:
			return total, fmt.Errorf("%w: %w", ErrEngineStream, rerr)
		}
	}
}
