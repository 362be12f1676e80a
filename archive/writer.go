// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultModTime is written into every header unless [WithModTime] is used.
var DefaultModTime = time.Unix(0o14202150465, 0)

// Option adjusts a [Writer] or [Reader].
type Option func(*options)

type options struct {
	modTime time.Time
	logger  logger
}

// logger is the subset of slog.Logger the codec uses.
type logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}

// WithModTime sets the modification time written into every header.
func WithModTime(t time.Time) Option {
	return func(o *options) {
		o.modTime = t
	}
}

// WithLogger sets the logger that receives progress messages.
func WithLogger(l logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{modTime: DefaultModTime, logger: nopLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Writer encodes members into the archive format. Parent directories of
// files are emitted implicitly, each at most once. Close must be called to
// write the end-of-archive marker.
//
// A failed write leaves the output truncated; the caller decides whether
// to discard it.
type Writer struct {
	w       io.Writer
	opts    *options
	dirs    map[string]struct{}
	blk     block
	closed  bool
	written int64
}

// NewWriter creates a new Writer writing to w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	return &Writer{
		w:    w,
		opts: newOptions(opts),
		dirs: make(map[string]struct{}),
	}
}

// Written returns the number of archive bytes emitted so far.
func (tw *Writer) Written() int64 {
	return tw.written
}

// Dirs returns the number of directory members written so far, implicit
// parents included.
func (tw *Writer) Dirs() int {
	return len(tw.dirs)
}

// WriteDir writes a directory member for path and any missing ancestor.
// A directory that has already been written is skipped.
func (tw *Writer) WriteDir(path string) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot write directory without name")
	}
	if err := tw.writeParents(path); err != nil {
		return err
	}
	return tw.writeDir(dirPath(path))
}

// WriteFile writes a regular file member with size bytes read from r.
// If r delivers fewer than size bytes the write fails with
// [io.ErrUnexpectedEOF] and the archive is left truncated.
func (tw *Writer) WriteFile(path string, size int64, r io.Reader) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot write file without name")
	}
	if strings.HasSuffix(path, "/") {
		return fmt.Errorf("file name %q ends with a separator", path)
	}
	if err := tw.writeParents(path); err != nil {
		return err
	}
	tw.opts.logger.Info("file", "path", path)
	hdr := &Header{
		Name:     path,
		Mode:     modeFile,
		UID:      nobodyID,
		GID:      nobodyID,
		Size:     size,
		Typeflag: TypeReg,
		Uname:    nobodyUser,
		Gname:    nobodyGroup,
	}
	if err := tw.writeHeader(hdr); err != nil {
		return err
	}
	return tw.writeContent(r, size)
}

// WriteMember writes m as a file or directory member.
func (tw *Writer) WriteMember(m *Member) error {
	if m.IsDir() {
		return tw.WriteDir(m.Path)
	}
	return tw.WriteFile(m.Path, int64(len(m.Content)), bytes.NewReader(m.Content))
}

// Close writes the end-of-archive marker. It does not close the
// underlying writer.
func (tw *Writer) Close() error {
	if tw.closed {
		return nil
	}
	tw.closed = true
	tw.blk = block{}
	for i := 0; i < 2; i++ {
		if err := tw.emit(tw.blk[:]); err != nil {
			return err
		}
	}
	return nil
}

func (tw *Writer) writeParents(path string) error {
	for _, dir := range parents(path) {
		if err := tw.writeDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func (tw *Writer) writeDir(dir string) error {
	if _, ok := tw.dirs[dir]; ok {
		return nil
	}
	tw.dirs[dir] = struct{}{}
	tw.opts.logger.Info("dir", "path", dir)
	return tw.writeHeader(&Header{
		Name:     dir,
		Mode:     modeDir,
		UID:      nobodyID,
		GID:      nobodyID,
		Typeflag: TypeDir,
		Uname:    nobodyUser,
		Gname:    nobodyGroup,
	})
}

// writeHeader writes hdr, preceded by a long name record if the name does
// not fit the header.
func (tw *Writer) writeHeader(hdr *Header) error {
	if tw.closed {
		return fmt.Errorf("write after close")
	}
	hdr.ModTime = tw.opts.modTime.Unix()

	if len(hdr.Name) > maxNameLength {
		if len(hdr.Name)+1 > maxLongNameLength {
			return fmt.Errorf("%w: name of %d bytes exceeds %d bytes", ErrFormat, len(hdr.Name), maxLongNameLength-1)
		}
		long := &Header{
			Name:     longNameSentinel,
			Size:     int64(len(hdr.Name)) + 1,
			ModTime:  hdr.ModTime,
			Typeflag: TypeLongName,
			Uname:    rootUser,
			Gname:    rootGroup,
		}
		if err := long.marshal(&tw.blk); err != nil {
			return err
		}
		if err := tw.emit(tw.blk[:]); err != nil {
			return err
		}
		name := append([]byte(hdr.Name), 0)
		if err := tw.writeContent(bytes.NewReader(name), long.Size); err != nil {
			return err
		}
	}

	if err := hdr.marshal(&tw.blk); err != nil {
		return err
	}
	return tw.emit(tw.blk[:])
}

// writeContent copies size bytes from r and pads them to the block size.
func (tw *Writer) writeContent(r io.Reader, size int64) error {
	for remaining := size; remaining > 0; {
		n := int64(BlockSize)
		if remaining < n {
			n = remaining
		}
		tw.blk = block{}
		if _, err := io.ReadFull(r, tw.blk[:n]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("cannot read content: %w", err)
		}
		if err := tw.emit(tw.blk[:]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func (tw *Writer) emit(p []byte) error {
	n, err := tw.w.Write(p)
	tw.written += int64(n)
	if err != nil {
		return fmt.Errorf("cannot write archive: %w", err)
	}
	return nil
}

// Encode writes all members followed by the end-of-archive marker to w.
func Encode(members []*Member, w io.Writer, opts ...Option) error {
	tw := NewWriter(w, opts...)
	for _, m := range members {
		if err := tw.WriteMember(m); err != nil {
			return err
		}
	}
	return tw.Close()
}
