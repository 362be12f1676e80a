// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archive

import "errors"

var (
	// ErrFormat is returned when the archive stream is short, not terminated
	// or carries a field that cannot be parsed.
	ErrFormat = errors.New("invalid archive format")

	// ErrChecksumMismatch is returned when the checksum stored in a header
	// does not match the checksum computed over the header bytes.
	ErrChecksumMismatch = errors.New("header checksum mismatch")
)
