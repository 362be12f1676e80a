// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/hashicorp/go-tzst/archive"
	"github.com/hashicorp/go-tzst/telemetry"
	"github.com/hashicorp/go-tzst/zstream"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config holds all configuration options for archive and extract calls.
type Config struct {
	// checksum enables the integrity footer of the compressed stream
	checksum bool

	// compressionLevel is the zstandard compression level, 0 selects the default
	compressionLevel int

	// concurrent selects the overlapped strategy, otherwise everything runs sequentially
	concurrent bool

	// create destination directory if it does not exist
	createDestination bool

	// customCreateDirMode is the file mode for created directories (respecting umask)
	customCreateDirMode fs.FileMode

	// logger stream for archive and extract calls
	logger Logger

	// maxInputSize is the maximum number of compressed bytes read during extraction.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// maxOutputSize is the maximum number of decompressed bytes. Decompression stops
	// successfully once it is reached. Set value to -1 to disable the check.
	maxOutputSize int64

	// maxWriters is the maximum number of background file writers in flight.
	// Set value to -1 to disable the limit.
	maxWriters int

	// modTime is the modification time written to every archive header
	modTime time.Time

	// Define if files should be overwritten in the destination
	overwrite bool

	// prefix is an extra path prepended to every member inside the archive
	prefix string

	// queueDepth is the number of chunks the overlapped strategy buffers
	queueDepth int

	// skipHidden leaves out files and directories whose name starts with a dot
	skipHidden bool

	// telemetryHook is a function to consume telemetry data after a finished call
	telemetryHook telemetry.Hook
}

// Checksum returns true if compressed output carries an integrity footer.
func (c *Config) Checksum() bool {
	return c.checksum
}

// CompressionLevel returns the compression level.
func (c *Config) CompressionLevel() int {
	return c.compressionLevel
}

// Concurrent returns true if producer and consumer run overlapped.
func (c *Config) Concurrent() bool {
	return c.concurrent
}

// CreateDestination returns true if the destination directory should be
// created if it does not exist.
func (c *Config) CreateDestination() bool {
	return c.createDestination
}

// CustomCreateDirMode returns the file mode for created directories.
// (respecting umask)
func (c *Config) CustomCreateDirMode() fs.FileMode {
	return c.customCreateDirMode
}

// Logger returns the logger.
func (c *Config) Logger() Logger {
	return c.logger
}

// MaxInputSize returns the maximum number of compressed bytes read during
// extraction.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// MaxOutputSize returns the maximum number of decompressed bytes.
func (c *Config) MaxOutputSize() int64 {
	return c.maxOutputSize
}

// MaxWriters returns the maximum number of background file writers.
func (c *Config) MaxWriters() int {
	return c.maxWriters
}

// ModTime returns the modification time written to archive headers.
func (c *Config) ModTime() time.Time {
	return c.modTime
}

// Overwrite returns true if files should be overwritten in the destination.
func (c *Config) Overwrite() bool {
	return c.overwrite
}

// Prefix returns the path prepended to archive members.
func (c *Config) Prefix() string {
	return c.prefix
}

// QueueDepth returns the number of chunks buffered between producer and
// consumer.
func (c *Config) QueueDepth() int {
	return c.queueDepth
}

// SkipHidden returns true if dot files are left out while archiving.
func (c *Config) SkipHidden() bool {
	return c.skipHidden
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() telemetry.Hook {
	if c.telemetryHook == nil {
		return telemetry.NoopHook
	}
	return c.telemetryHook
}

const (
	defaultChecksum            = true                 // write integrity footer
	defaultCompressionLevel    = zstream.DefaultLevel // engine default
	defaultConcurrent          = true                 // overlapped strategy
	defaultCreateDestination   = false                // don't create destination directory
	defaultCustomCreateDirMode = 0750                 // default directory permissions rwxr-x---
	defaultMaxInputSize        = -1                   // no input limit
	defaultMaxOutputSize       = -1                   // no output limit
	defaultMaxWriters          = 8                    // background file writers
	defaultOverwrite           = false                // don't overwrite existing files
	defaultPrefix              = ""                   // no prefix
	defaultQueueDepth          = 64                   // chunks in flight
	defaultSkipHidden          = false                // archive dot files
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		checksum:            defaultChecksum,
		compressionLevel:    defaultCompressionLevel,
		concurrent:          defaultConcurrent,
		createDestination:   defaultCreateDestination,
		customCreateDirMode: defaultCustomCreateDirMode,
		logger:              defaultLogger,
		maxInputSize:        defaultMaxInputSize,
		maxOutputSize:       defaultMaxOutputSize,
		maxWriters:          defaultMaxWriters,
		modTime:             archive.DefaultModTime,
		overwrite:           defaultOverwrite,
		prefix:              defaultPrefix,
		queueDepth:          defaultQueueDepth,
		skipHidden:          defaultSkipHidden,
		telemetryHook:       telemetry.NoopHook,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithChecksum options pattern function to enable/disable the integrity
// footer of the compressed stream.
func WithChecksum(enable bool) ConfigOption {
	return func(c *Config) {
		c.checksum = enable
	}
}

// WithCompressionLevel options pattern function to set the compression
// level. Valid levels are 1 to 22, 0 selects the default level.
func WithCompressionLevel(level int) ConfigOption {
	return func(c *Config) {
		c.compressionLevel = level
	}
}

// WithConcurrent options pattern function to run producer and consumer
// overlapped (true) or one after the other (false).
func WithConcurrent(concurrent bool) ConfigOption {
	return func(c *Config) {
		c.concurrent = concurrent
	}
}

// WithCreateDestination options pattern function to create
// destination directory if it does not exist.
func WithCreateDestination(create bool) ConfigOption {
	return func(c *Config) {
		c.createDestination = create
	}
}

// WithCustomCreateDirMode options pattern function to set the file mode
// for created directories. (respecting umask)
func WithCustomCreateDirMode(mode fs.FileMode) ConfigOption {
	return func(c *Config) {
		c.customCreateDirMode = mode
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger Logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxInputSize options pattern function to set the maximum number of
// compressed bytes read during extraction. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithMaxOutputSize options pattern function to stop decompression after
// maxOutputSize bytes. (-1 to disable check)
func WithMaxOutputSize(maxOutputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxOutputSize = maxOutputSize
	}
}

// WithMaxWriters options pattern function to set the number of background
// file writers in flight. (-1 for no limit)
func WithMaxWriters(maxWriters int) ConfigOption {
	return func(c *Config) {
		c.maxWriters = maxWriters
	}
}

// WithModTime options pattern function to set the modification time that
// is written to every archive header.
func WithModTime(t time.Time) ConfigOption {
	return func(c *Config) {
		c.modTime = t
	}
}

// WithOverwrite options pattern function specify if files should be overwritten in the destination.
func WithOverwrite(enable bool) ConfigOption {
	return func(c *Config) {
		c.overwrite = enable
	}
}

// WithPrefix options pattern function to prepend prefix to every member
// path inside the archive.
func WithPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.prefix = prefix
	}
}

// WithQueueDepth options pattern function to set the number of chunks
// buffered between producer and consumer. (0 or less for no limit)
func WithQueueDepth(depth int) ConfigOption {
	return func(c *Config) {
		c.queueDepth = depth
	}
}

// WithSkipHidden options pattern function to leave out files and
// directories whose name starts with a dot.
func WithSkipHidden(skip bool) ConfigOption {
	return func(c *Config) {
		c.skipHidden = skip
	}
}

// WithTelemetryHook options pattern function to set a [telemetry.Hook], which is called after a call finished.
func WithTelemetryHook(hook telemetry.Hook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
