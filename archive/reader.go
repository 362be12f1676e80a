// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Reader decodes members from an archive stream in sequential order.
//
// Every ancestor directory of a member is delivered as a [Directory]
// member before the member itself, each directory at most once, so a
// consumer can create directories before the files inside them.
type Reader struct {
	r       io.Reader
	opts    *options
	blk     block
	dirs    map[string]struct{}
	queue   []*Member
	err     error
	skipped int
}

// NewReader creates a new Reader reading from r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		r:    r,
		opts: newOptions(opts),
		dirs: make(map[string]struct{}),
	}
}

// Skipped returns the number of members that were skipped because their
// type is not supported.
func (tr *Reader) Skipped() int {
	return tr.skipped
}

// Next returns the next member. At the end of the archive it returns
// io.EOF. Decoding does not resynchronize after an error; every later call
// returns an error as well.
func (tr *Reader) Next() (*Member, error) {
	if len(tr.queue) > 0 {
		m := tr.queue[0]
		tr.queue = tr.queue[1:]
		return m, nil
	}
	if tr.err != nil {
		return nil, tr.err
	}

	var longName string
	var haveLongName bool
	for {
		hdr, err := tr.readHeader()
		if err != nil {
			return nil, tr.fail(err)
		}

		// end of archive
		if hdr == nil {
			if haveLongName {
				return nil, tr.fail(fmt.Errorf("%w: long name %q without member", ErrFormat, longName))
			}
			return nil, tr.fail(io.EOF)
		}

		if hdr.Typeflag == TypeLongName && hdr.Name == longNameSentinel {
			if longName, err = tr.readLongName(hdr.Size); err != nil {
				return nil, tr.fail(err)
			}
			haveLongName = true
			continue
		}
		if haveLongName {
			hdr.Name = longName
			haveLongName = false
		}
		if len(hdr.Name) == 0 {
			return nil, tr.fail(fmt.Errorf("%w: member without name", ErrFormat))
		}

		switch {
		case isDirHeader(hdr):
			if err := tr.skipContent(hdr.Size); err != nil {
				return nil, tr.fail(err)
			}
			tr.queueParents(hdr.Name)
			tr.queueDir(dirPath(hdr.Name), fs.FileMode(hdr.Mode).Perm())

		case isRegHeader(hdr):
			content, err := tr.readContent(hdr.Size)
			if err != nil {
				return nil, tr.fail(err)
			}
			tr.queueParents(hdr.Name)
			tr.queue = append(tr.queue, &Member{
				Path:    hdr.Name,
				Kind:    File,
				Mode:    fs.FileMode(hdr.Mode).Perm(),
				Content: content,
			})

		default:
			// content of unsupported members is consumed to stay aligned
			if err := tr.skipContent(hdr.Size); err != nil {
				return nil, tr.fail(err)
			}
			tr.skipped++
			tr.opts.logger.Debug("skip unsupported member", "path", hdr.Name, "typeflag", string(hdr.Typeflag))
		}

		if len(tr.queue) > 0 {
			return tr.Next()
		}
	}
}

func (tr *Reader) fail(err error) error {
	tr.err = err
	return err
}

func isDirHeader(hdr *Header) bool {
	if hdr.Typeflag == TypeDir {
		return true
	}
	return (hdr.Typeflag == TypeReg || hdr.Typeflag == TypeRegA) && strings.HasSuffix(hdr.Name, "/")
}

func isRegHeader(hdr *Header) bool {
	return hdr.Typeflag == TypeReg || hdr.Typeflag == TypeRegA
}

func (tr *Reader) queueParents(path string) {
	for _, dir := range parents(path) {
		tr.queueDir(dir, modeDir)
	}
}

func (tr *Reader) queueDir(dir string, mode fs.FileMode) {
	if _, ok := tr.dirs[dir]; ok {
		return
	}
	tr.dirs[dir] = struct{}{}
	tr.queue = append(tr.queue, &Member{Path: dir, Kind: Directory, Mode: mode})
}

// readHeader reads the next header block. It returns nil at the
// end-of-archive marker.
func (tr *Reader) readHeader() (*Header, error) {
	if err := tr.readBlock(); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: missing end-of-archive marker", ErrFormat)
		}
		return nil, fmt.Errorf("cannot read header: %w", err)
	}
	// a zero first byte alone is not the marker, so a damaged header
	// fails the checksum instead of ending the archive early
	if tr.blk.isZero() {
		return nil, nil
	}
	return unmarshalHeader(&tr.blk)
}

// readBlock reads exactly one block. A partial block is reported as
// ErrFormat, a clean end of stream as io.EOF. Other errors of the source
// are returned unchanged.
func (tr *Reader) readBlock() error {
	n, err := io.ReadFull(tr.r, tr.blk[:])
	switch {
	case err == nil:
		return nil
	case err == io.ErrUnexpectedEOF || (err == io.EOF && n > 0):
		return fmt.Errorf("%w: short read of %d bytes", ErrFormat, n)
	}
	return err
}

// readContent reads size bytes of content plus padding.
func (tr *Reader) readContent(size int64) ([]byte, error) {
	var buf bytes.Buffer
	if err := tr.copyContent(&buf, size); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// skipContent consumes size bytes of content plus padding.
func (tr *Reader) skipContent(size int64) error {
	return tr.copyContent(io.Discard, size)
}

func (tr *Reader) copyContent(w io.Writer, size int64) error {
	for remaining := size; remaining > 0; remaining -= BlockSize {
		if err := tr.readBlock(); err != nil {
			if err == io.EOF {
				return fmt.Errorf("%w: content ends after %d of %d bytes", ErrFormat, size-remaining, size)
			}
			return fmt.Errorf("cannot read content: %w", err)
		}
		n := int64(BlockSize)
		if remaining < n {
			n = remaining
		}
		if _, err := w.Write(tr.blk[:n]); err != nil {
			return err
		}
	}
	return nil
}

// readLongName reads the payload of a long name record. Payloads larger
// than maxLongNameLength are rejected instead of truncated.
func (tr *Reader) readLongName(size int64) (string, error) {
	if size > maxLongNameLength {
		return "", fmt.Errorf("%w: long name of %d bytes exceeds %d bytes", ErrFormat, size, maxLongNameLength)
	}
	var buf bytes.Buffer
	if err := tr.copyContent(&buf, size); err != nil {
		return "", err
	}
	return parseString(buf.Bytes()), nil
}

// Decode reads all members from r and passes them to fn in archive order.
// It stops at the first error returned by the stream or by fn.
func Decode(r io.Reader, fn func(*Member) error, opts ...Option) error {
	tr := NewReader(r, opts...)
	for {
		m, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
	}
}
