// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// Operation names a top-level call.
type Operation string

const (
	OperationArchive Operation = "archive"
	OperationExtract Operation = "extract"
)

// Data holds all telemetry data of one archive or extract call.
type Data struct {
	// Operation is the performed call
	Operation Operation `json:"operation"`

	// Dirs is the number of archived or extracted directories
	Dirs int64 `json:"dirs"`

	// Files is the number of archived or extracted files
	Files int64 `json:"files"`

	// SkippedMembers is the number of unsupported archive members that were skipped
	SkippedMembers int64 `json:"skipped_members"`

	// InputSize is the number of bytes consumed: source file content when
	// archiving, compressed bytes when extracting
	InputSize int64 `json:"input_size"`

	// OutputSize is the number of bytes produced: compressed bytes when
	// archiving, written file content when extracting
	OutputSize int64 `json:"output_size"`

	// Duration is the wall-clock time of the call
	Duration time.Duration `json:"duration"`

	// Errors is the number of errors during the call
	Errors int64 `json:"errors"`

	// LastError is the last error during the call
	LastError error `json:"last_error"`
}

// String returns a string representation of [Data].
func (d Data) String() string {
	b, _ := json.Marshal(d)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (d Data) MarshalJSON() ([]byte, error) {
	var lastError string
	if d.LastError != nil {
		lastError = d.LastError.Error()
	}

	type Alias Data
	return json.Marshal(&struct {
		LastError string `json:"last_error"`
		*Alias
	}{
		LastError: lastError,
		Alias:     (*Alias)(&d),
	})
}

// Hook is a function type that consumes [Data] after a call has finished,
// e.g. to submit it to a telemetry service.
type Hook func(context.Context, *Data)

// NoopHook discards the data.
func NoopHook(ctx context.Context, d *Data) {
	// noop
}
