// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	tzst "github.com/hashicorp/go-tzst"
	"github.com/hashicorp/go-tzst/config"
	"github.com/hashicorp/go-tzst/target"
	"github.com/hashicorp/go-tzst/telemetry"
	"github.com/pkg/errors"
)

// CLI are the cli parameters for the tzst binary
type CLI struct {
	Compress  CompressCmd      `cmd:"" help:"Create a compressed archive from a directory."`
	Extract   ExtractCmd       `cmd:"" help:"Extract a compressed archive into a directory."`
	Telemetry bool             `short:"T" optional:"" default:"false" help:"Print telemetry data to log after the operation."`
	Verbose   bool             `short:"v" optional:"" help:"Verbose logging."`
	Version   kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`
}

// CompressCmd are the parameters of the compress command
type CompressCmd struct {
	Archive    string `arg:"" name:"archive" help:"Path of the archive to create."`
	Source     string `arg:"" name:"source" help:"Directory to archive." type:"existingdir"`
	Level      int    `short:"l" default:"3" help:"Compression level (1-22)."`
	NoChecksum bool   `help:"Omit the content checksum of the compressed stream."`
	Prefix     string `short:"p" help:"Directory inside the archive that holds the source directory."`
	Sequential bool   `help:"Encode the whole archive before compressing it."`
	SkipHidden bool   `short:"H" help:"Leave out files and directories starting with a dot."`
}

// ExtractCmd are the parameters of the extract command
type ExtractCmd struct {
	Archive           string `arg:"" name:"archive" help:"Path to archive." type:"existingfile"`
	Destination       string `arg:"" name:"destination" default:"." help:"Output directory."`
	CreateDestination bool   `short:"C" help:"Create destination directory if it does not exist."`
	DryRun            bool   `help:"Decode the archive without writing anything."`
	MaxInputSize      int64  `optional:"" default:"-1" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	MaxOutput         int64  `optional:"" default:"-1" help:"Maximum decompressed size that allowed is (in bytes). (disable check: -1)"`
	MaxWriters        int    `optional:"" default:"8" help:"Maximum number of files written in parallel. (no limit: -1)"`
	Overwrite         bool   `short:"O" help:"Overwrite if exist."`
	Sequential        bool   `help:"Decompress the whole archive before decoding it."`
}

// globals are passed to every command
type globals struct {
	ctx     context.Context
	logger  *slog.Logger
	options []config.ConfigOption
}

// Run the entrypoint into tzst as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Description("Create and extract zstd compressed tar archives"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// setup telemetry hook
	telemetryToLog := func(ctx context.Context, td *telemetry.Data) {
		if cli.Telemetry {
			logger.Info("operation finished", "telemetry", td)
		}
	}

	g := &globals{
		ctx:    context.Background(),
		logger: logger,
		options: []config.ConfigOption{
			config.WithLogger(logger),
			config.WithTelemetryHook(telemetryToLog),
		},
	}
	if err := kctx.Run(g); err != nil {
		logger.Error("operation failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Run creates the archive.
func (c *CompressCmd) Run(g *globals) error {
	cfg := config.NewConfig(append(g.options,
		config.WithChecksum(!c.NoChecksum),
		config.WithCompressionLevel(c.Level),
		config.WithConcurrent(!c.Sequential),
		config.WithPrefix(c.Prefix),
		config.WithSkipHidden(c.SkipHidden),
	)...)

	if err := tzst.Archive(g.ctx, c.Source, c.Archive, cfg); err != nil {
		return errors.Wrapf(err, "compressing %s into %s", c.Source, c.Archive)
	}
	return nil
}

// Run extracts the archive.
func (c *ExtractCmd) Run(g *globals) error {
	opts := append(g.options,
		config.WithConcurrent(!c.Sequential),
		config.WithCreateDestination(c.CreateDestination),
		config.WithMaxInputSize(c.MaxInputSize),
		config.WithMaxOutputSize(c.MaxOutput),
		config.WithMaxWriters(c.MaxWriters),
		config.WithOverwrite(c.Overwrite),
	)
	cfg := config.NewConfig(opts...)

	var t target.Target = target.NewDisk()
	if c.DryRun {
		// nothing exists on a noop target
		t = target.NewNoop()
		cfg = config.NewConfig(append(opts, config.WithCreateDestination(true))...)
	}

	if err := tzst.Extract(g.ctx, c.Archive, c.Destination, t, cfg); err != nil {
		return errors.Wrapf(err, "extracting %s into %s", c.Archive, c.Destination)
	}
	return nil
}
