// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"fmt"
	"strconv"
)

// BlockSize is the size of a header record and the unit content is padded to.
const BlockSize = 512

// maxNameLength is the capacity of the name field of a header.
const maxNameLength = 100

// longNameSentinel is the name of the record carrying a long path.
const longNameSentinel = "././@LongLink"

// maxLongNameLength caps the payload of a long name record, terminating
// NUL included.
const maxLongNameLength = 4096

// maxOctalSize is the largest value an 11 digit octal field can hold.
const maxOctalSize = 0o77777777777

// Typeflags understood by the codec.
const (
	TypeReg      byte = '0'
	TypeRegA     byte = '\x00'
	TypeDir      byte = '5'
	TypeLongName byte = 'L'
)

// Owner ids and names written into headers. Ownership is not taken from
// the source filesystem.
const (
	nobodyID    = 65534
	nobodyUser  = "nobody"
	nobodyGroup = "nogroup"
	rootUser    = "root"
	rootGroup   = "root"
)

// Default permissions for archived members.
const (
	modeFile = 0o644
	modeDir  = 0o755
)

// field is a fixed position inside a header block.
type field struct {
	offset int
	width  int
}

func (f field) of(b *block) []byte {
	return b[f.offset : f.offset+f.width]
}

var (
	fieldName     = field{0, 100}
	fieldMode     = field{100, 8}
	fieldUID      = field{108, 8}
	fieldGID      = field{116, 8}
	fieldSize     = field{124, 12}
	fieldModTime  = field{136, 12}
	fieldChecksum = field{148, 8}
	fieldTypeflag = field{156, 1}
	fieldMagic    = field{257, 6}
	fieldVersion  = field{263, 2}
	fieldUname    = field{265, 32}
	fieldGname    = field{297, 32}

	// linkname (157, 100), devmajor (329, 8), devminor (337, 8) and
	// prefix (345, 155) are always left zero.
)

var (
	magicGNU   = []byte("ustar ")
	versionGNU = []byte(" \x00")
)

// block is one raw 512 byte record.
type block [BlockSize]byte

// isZero reports whether the block consists of zero bytes only.
func (b *block) isZero() bool {
	return *b == block{}
}

// Header is the decoded form of a header record.
type Header struct {
	Name     string
	Mode     int64
	UID      int64
	GID      int64
	Size     int64
	ModTime  int64
	Checksum int64
	Typeflag byte
	Uname    string
	Gname    string
}

// marshal encodes h into b, computing the checksum. Names longer than the
// name field are cut to its capacity.
func (h *Header) marshal(b *block) error {
	if h.Size < 0 || h.Size > maxOctalSize {
		return fmt.Errorf("%w: size %d does not fit the header", ErrFormat, h.Size)
	}

	*b = block{}
	copy(fieldName.of(b), h.Name)
	formatOctal(fieldMode.of(b), h.Mode)
	formatOctal(fieldUID.of(b), h.UID)
	formatOctal(fieldGID.of(b), h.GID)
	formatOctal(fieldSize.of(b), h.Size)
	formatOctal(fieldModTime.of(b), h.ModTime)
	fieldTypeflag.of(b)[0] = h.Typeflag
	copy(fieldMagic.of(b), magicGNU)
	copy(fieldVersion.of(b), versionGNU)
	copy(fieldUname.of(b), h.Uname)
	copy(fieldGname.of(b), h.Gname)

	unsigned, _ := computeChecksum(b)
	chk := fieldChecksum.of(b)
	copy(chk, fmt.Sprintf("%06o", unsigned))
	chk[6] = 0
	chk[7] = ' '
	return nil
}

// unmarshalHeader verifies the checksum of b and parses its fields.
func unmarshalHeader(b *block) (*Header, error) {
	checksum, err := parseOctal(fieldChecksum.of(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	unsigned, signed := computeChecksum(b)
	if checksum != unsigned && checksum != signed {
		return nil, fmt.Errorf("%w: header %q has %o, computed %o", ErrChecksumMismatch, parseString(fieldName.of(b)), checksum, unsigned)
	}

	parse := func(f field) int64 {
		if err != nil {
			return 0
		}
		var v int64
		v, err = parseOctal(f.of(b))
		return v
	}
	h := &Header{
		Name:     parseString(fieldName.of(b)),
		Mode:     parse(fieldMode),
		UID:      parse(fieldUID),
		GID:      parse(fieldGID),
		Size:     parse(fieldSize),
		ModTime:  parse(fieldModTime),
		Checksum: checksum,
		Typeflag: fieldTypeflag.of(b)[0],
		Uname:    parseString(fieldUname.of(b)),
		Gname:    parseString(fieldGname.of(b)),
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header %q: %w", ErrFormat, h.Name, err)
	}
	if h.Size < 0 {
		return nil, fmt.Errorf("%w: negative size in header %q", ErrFormat, h.Name)
	}
	return h, nil
}

// computeChecksum sums all bytes of b with the checksum field counted as
// eight spaces. Both the unsigned and the signed byte sum are returned.
func computeChecksum(b *block) (unsigned, signed int64) {
	for i, c := range b {
		if i >= fieldChecksum.offset && i < fieldChecksum.offset+fieldChecksum.width {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// formatOctal writes v as zero padded octal digits filling all but the
// last byte of dst, which is left as NUL.
func formatOctal(dst []byte, v int64) {
	s := strconv.FormatInt(v, 8)
	digits := len(dst) - 1
	for len(s) < digits {
		s = "0" + s
	}
	copy(dst, s)
	dst[digits] = 0
}

// parseOctal parses an octal field, ignoring surrounding spaces and NULs.
func parseOctal(b []byte) (int64, error) {
	b = bytes.Trim(b, " \x00")
	if len(b) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(b), 8, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid octal field %q", b)
	}
	return v, nil
}

// parseString returns the bytes of b up to the first NUL.
func parseString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// paddingFor returns the number of zero bytes following size bytes of content.
func paddingFor(size int64) int64 {
	return -size & (BlockSize - 1)
}
