// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tzst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-tzst/archive"
	"github.com/hashicorp/go-tzst/config"
	"github.com/hashicorp/go-tzst/pipeline"
	"github.com/hashicorp/go-tzst/target"
	"github.com/hashicorp/go-tzst/telemetry"
	"github.com/hashicorp/go-tzst/zstream"
	"golang.org/x/sync/errgroup"
)

// Extract extracts the compressed archive archivePath into dst on t.
// See [ExtractFrom] for details.
func Extract(ctx context.Context, archivePath string, dst string, t target.Target, cfg *config.Config) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: cannot open archive: %w", ErrIO, err)
	}
	defer f.Close()
	return ExtractFrom(ctx, f, dst, t, cfg)
}

// ExtractFrom decompresses the archive read from src and writes its
// directories and files below dst on t.
//
// Directories are created in archive order before the files inside them.
// With config.Concurrent() decompression runs in a separate goroutine and
// file content is written by background writers, at most
// config.MaxWriters() at a time. All writers are awaited before
// ExtractFrom returns; the first failing writer determines the error.
// Files written before a failure remain in place.
func ExtractFrom(ctx context.Context, src io.Reader, dst string, t target.Target, cfg *config.Config) error {
	rec := newRecorder(telemetry.OperationExtract)
	defer func() { cfg.TelemetryHook()(ctx, rec.td) }()
	defer rec.captureDuration(now())

	if err := ensureDestination(t, dst, cfg); err != nil {
		return rec.handleError(cfg, "cannot prepare destination", err)
	}

	// limit input size
	limitedReader := newLimitErrorReader(src, cfg.MaxInputSize())
	defer rec.update(func(td *telemetry.Data) {
		td.InputSize = limitedReader.ReadBytes()
	})

	ex := &extraction{
		ctx: ctx,
		t:   t,
		dst: dst,
		cfg: cfg,
		rec: rec,
	}
	opts := []zstream.Option{zstream.WithMaxOutput(cfg.MaxOutputSize())}

	var err error
	if cfg.Concurrent() {
		limit := cfg.MaxWriters()
		if limit == 0 {
			limit = 1
		}
		ex.writers.SetLimit(limit)
		ex.async = true
		err = extractOverlapped(ctx, limitedReader, ex, opts)
	} else {
		err = extractSequential(ctx, limitedReader, ex, opts)
	}

	// join background writers, the first writer failure is reported even
	// if decoding failed afterwards
	if werr := ex.writers.Wait(); werr != nil {
		err = errors.Join(werr, err)
	}
	if err != nil {
		return rec.handleError(cfg, "cannot extract archive", err)
	}
	return nil
}

// extractSequential decompresses the whole archive into memory and
// decodes it afterwards.
func extractSequential(ctx context.Context, src io.Reader, ex *extraction, opts []zstream.Option) error {
	var buf bytes.Buffer
	if _, err := zstream.Decompress(ctx, src, &buf, opts...); err != nil {
		return err
	}
	return ex.decode(&buf)
}

// extractOverlapped decompresses in a separate goroutine into a bounded
// queue, while the archive is decoded from the queue.
func extractOverlapped(ctx context.Context, src io.Reader, ex *extraction, opts []zstream.Option) error {
	q := pipeline.NewQueue(ex.cfg.QueueDepth())

	var g errgroup.Group
	g.Go(func() error {
		_, err := zstream.Decompress(ctx, src, q, opts...)
		q.CloseWithError(err)
		return err
	})

	derr := ex.decode(q)
	if derr == nil {
		// data after the end-of-archive marker is read so the integrity
		// footer of the compressed stream is verified
		_, derr = io.Copy(io.Discard, q)
	}
	if derr != nil {
		q.CloseRead(derr)
	}

	// the decompressor error is the cause, unless it only reports the
	// decoder giving up
	if perr := g.Wait(); perr != nil && (derr == nil || !errors.Is(perr, derr)) {
		return perr
	}
	return derr
}

// extraction holds the state of one extract call.
type extraction struct {
	ctx     context.Context
	t       target.Target
	dst     string
	cfg     *config.Config
	rec     *recorder
	async   bool
	writers errgroup.Group
}

// decode reads all members from r. Directories are created right away,
// files are handed to a background writer in async mode.
func (ex *extraction) decode(r io.Reader) error {
	tr := archive.NewReader(r, archive.WithLogger(ex.cfg.Logger()))
	defer func() {
		ex.rec.update(func(td *telemetry.Data) {
			td.SkippedMembers = int64(tr.Skipped())
		})
	}()

	for {
		// check if context is canceled
		if err := ex.ctx.Err(); err != nil {
			return err
		}

		m, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if m.IsDir() {
			ex.cfg.Logger().Info("dir", "path", m.Path)
			if err := createDir(ex.t, ex.dst, m.Path, ex.cfg); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", m.Path, err)
			}
			ex.rec.update(func(td *telemetry.Data) {
				td.Dirs++
			})
			continue
		}

		if !ex.async {
			if err := ex.writeFile(m); err != nil {
				return err
			}
			continue
		}

		// blocks while config.MaxWriters() writers are busy
		ex.writers.Go(func() error { return ex.writeFile(m) })
	}
}

// writeFile writes the content of the file member m.
func (ex *extraction) writeFile(m *archive.Member) error {
	ex.cfg.Logger().Info("file", "path", m.Path)
	n, err := createFile(ex.t, ex.dst, m.Path, bytes.NewReader(m.Content), m.Mode, ex.cfg)
	ex.rec.update(func(td *telemetry.Data) {
		td.OutputSize += n
		if err == nil {
			td.Files++
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", m.Path, err)
	}
	return nil
}
