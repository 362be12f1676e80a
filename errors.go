// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tzst

import (
	"errors"

	"github.com/hashicorp/go-tzst/archive"
	"github.com/hashicorp/go-tzst/zstream"
)

var (
	// ErrIO is returned when opening, reading or writing a file or stream fails.
	ErrIO = zstream.ErrIO

	// ErrFormat is returned for a short header or content block and for an
	// archive without end-of-archive marker.
	ErrFormat = archive.ErrFormat

	// ErrChecksumMismatch is returned when a header is corrupted.
	ErrChecksumMismatch = archive.ErrChecksumMismatch

	// ErrEngineInit is returned when the compression engine cannot be set
	// up, e.g. for an invalid compression level.
	ErrEngineInit = zstream.ErrEngineInit

	// ErrEngineStream is returned for a malformed compressed stream.
	ErrEngineStream = zstream.ErrEngineStream

	// ErrEmptyInput is returned when the compressed input has no byte at all.
	ErrEmptyInput = zstream.ErrEmptyInput

	// ErrUnsafePath is returned for members that would be written outside
	// of the destination.
	ErrUnsafePath = errors.New("unsafe path")

	// ErrMaxInputSizeExceeded is returned when more compressed input is read
	// than configured with [config.WithMaxInputSize].
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")

	// ErrDestinationNotExist is returned when the destination is missing and
	// may not be created.
	ErrDestinationNotExist = errors.New("destination does not exist")
)
