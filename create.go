// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tzst

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-tzst/archive"
	"github.com/hashicorp/go-tzst/catalog"
	"github.com/hashicorp/go-tzst/config"
	"github.com/hashicorp/go-tzst/pipeline"
	"github.com/hashicorp/go-tzst/telemetry"
	"github.com/hashicorp/go-tzst/zstream"
	"golang.org/x/sync/errgroup"
)

// Archive creates the compressed archive archivePath from the content of
// srcDir. See [ArchiveTo] for the layout of the archive.
//
// A failed call leaves a truncated archive behind; the caller decides
// whether to remove it.
func Archive(ctx context.Context, srcDir string, archivePath string, cfg *config.Config) error {
	f, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: cannot create archive: %w", ErrIO, err)
	}

	if err := ArchiveTo(ctx, srcDir, f, cfg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: cannot close archive: %w", ErrIO, err)
	}
	return nil
}

// ArchiveTo scans srcDir and writes the compressed archive to w. Members
// are stored below the base name of srcDir, which is itself placed below
// config.Prefix() if set. Hidden files are left out if
// config.SkipHidden() returns true.
func ArchiveTo(ctx context.Context, srcDir string, w io.Writer, cfg *config.Config) error {
	entries, err := catalog.Scan(srcDir, cfg.SkipHidden())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	prefix := memberPrefix(srcDir, cfg.Prefix())
	if len(prefix) > 0 {
		for i := range entries {
			entries[i].TargetPath = catalog.JoinPath(prefix, entries[i].TargetPath)
		}
	}

	return ArchiveFiles(ctx, entries, w, cfg)
}

// memberPrefix joins the configured prefix with the base name of srcDir.
func memberPrefix(srcDir string, prefix string) string {
	base := catalog.BaseName(srcDir)
	switch {
	case len(base) == 0:
		return prefix
	case len(prefix) == 0:
		return base
	}
	return catalog.JoinPath(prefix, base)
}

// ArchiveFiles encodes entries in the given order and writes the
// compressed archive to w. Directories of files are added implicitly.
//
// With config.Concurrent() the archive is encoded by a separate goroutine
// while the compressor drains a bounded queue, otherwise the whole archive
// is encoded into memory before it is compressed.
func ArchiveFiles(ctx context.Context, entries []catalog.Entry, w io.Writer, cfg *config.Config) error {
	rec := newRecorder(telemetry.OperationArchive)
	defer func() { cfg.TelemetryHook()(ctx, rec.td) }()
	defer rec.captureDuration(now())

	opts := []zstream.Option{
		zstream.WithLevel(cfg.CompressionLevel()),
		zstream.WithChecksum(cfg.Checksum()),
	}

	var n int64
	var err error
	if cfg.Concurrent() {
		n, err = archiveOverlapped(ctx, entries, w, cfg, rec, opts)
	} else {
		n, err = archiveSequential(ctx, entries, w, cfg, rec, opts)
	}
	rec.update(func(td *telemetry.Data) {
		td.OutputSize = n
	})
	if err != nil {
		return rec.handleError(cfg, "cannot create archive", err)
	}
	return nil
}

// archiveSequential encodes the archive into a memory buffer and
// compresses it afterwards.
func archiveSequential(ctx context.Context, entries []catalog.Entry, w io.Writer, cfg *config.Config, rec *recorder, opts []zstream.Option) (int64, error) {
	var buf bytes.Buffer
	if err := encodeEntries(ctx, entries, &buf, cfg, rec); err != nil {
		return 0, err
	}
	return zstream.Compress(ctx, &buf, w, opts...)
}

// archiveOverlapped encodes the archive in a separate goroutine into a
// bounded queue, which is drained by the compressor at the same time.
func archiveOverlapped(ctx context.Context, entries []catalog.Entry, w io.Writer, cfg *config.Config, rec *recorder, opts []zstream.Option) (int64, error) {
	q := pipeline.NewQueue(cfg.QueueDepth())

	var g errgroup.Group
	g.Go(func() error {
		// block sized writes would make every header a chunk of its own
		bw := bufio.NewWriterSize(q, zstream.CompressInSize)
		err := encodeEntries(ctx, entries, bw, cfg, rec)
		if err == nil {
			err = bw.Flush()
		}
		q.CloseWithError(err)
		return err
	})

	n, cerr := zstream.Compress(ctx, q, w, opts...)
	if cerr != nil {
		q.CloseRead(cerr)
	}

	// the encoder error is the cause, unless it only reports the
	// compressor giving up
	if perr := g.Wait(); perr != nil && (cerr == nil || !errors.Is(perr, cerr)) {
		return n, perr
	}
	return n, cerr
}

// encodeEntries writes the archive of entries to w.
func encodeEntries(ctx context.Context, entries []catalog.Entry, w io.Writer, cfg *config.Config, rec *recorder) error {
	tw := archive.NewWriter(w, archive.WithModTime(cfg.ModTime()), archive.WithLogger(cfg.Logger()))

	for _, e := range entries {
		// check if context is canceled
		if err := ctx.Err(); err != nil {
			return err
		}

		if e.IsDir {
			if err := tw.WriteDir(e.TargetPath); err != nil {
				return err
			}
			continue
		}

		if err := encodeFile(tw, e); err != nil {
			return err
		}
		rec.update(func(td *telemetry.Data) {
			td.Files++
			td.InputSize += e.Size
		})
	}

	if err := tw.Close(); err != nil {
		return err
	}
	rec.update(func(td *telemetry.Data) {
		td.Dirs = int64(tw.Dirs())
	})
	return nil
}

// encodeFile writes the content of the source file of e.
func encodeFile(tw *archive.Writer, e catalog.Entry) error {
	f, err := os.Open(e.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: cannot open file: %w", ErrIO, err)
	}
	defer f.Close()

	err = tw.WriteFile(e.TargetPath, e.Size, &sourceReader{r: f, path: e.SourcePath})
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s is shorter than %d bytes: %w", ErrIO, e.SourcePath, e.Size, err)
	}
	return err
}

// sourceReader marks read errors of a source file as ErrIO.
type sourceReader struct {
	r    io.Reader
	path string
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: cannot read %s: %w", ErrIO, s.path, err)
	}
	return n, err
}
