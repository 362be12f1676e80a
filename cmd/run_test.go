// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	tzst "github.com/hashicorp/go-tzst"
	"github.com/stretchr/testify/require"
)

func testGlobals() *globals {
	return &globals{
		ctx:    context.Background(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestParse(t *testing.T) {
	src := t.TempDir()
	archive := filepath.Join(t.TempDir(), "a.tar.zst")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o644))

	cases := []struct {
		name    string
		args    []string
		check   func(t *testing.T, cli *CLI)
		wantErr bool
	}{
		{
			name: "compress",
			args: []string{"compress", "-l", "19", "-p", "pre", archive, src},
			check: func(t *testing.T, cli *CLI) {
				require.Equal(t, 19, cli.Compress.Level)
				require.Equal(t, "pre", cli.Compress.Prefix)
				require.Equal(t, src, cli.Compress.Source)
			},
		},
		{
			name: "extract",
			args: []string{"-v", "extract", "-C", "-O", "--dry-run", archive},
			check: func(t *testing.T, cli *CLI) {
				require.True(t, cli.Verbose)
				require.True(t, cli.Extract.CreateDestination)
				require.True(t, cli.Extract.Overwrite)
				require.True(t, cli.Extract.DryRun)
				require.Equal(t, ".", cli.Extract.Destination)
				require.EqualValues(t, -1, cli.Extract.MaxOutput)
				require.Equal(t, 8, cli.Extract.MaxWriters)
			},
		},
		{
			name: "extract with destination",
			args: []string{"extract", "--sequential", archive, "out"},
			check: func(t *testing.T, cli *CLI) {
				require.True(t, cli.Extract.Sequential)
				require.Equal(t, "out", cli.Extract.Destination)
			},
		},
		{name: "missing arguments", args: []string{"compress"}, wantErr: true},
		{name: "unknown flag", args: []string{"extract", "--bogus", archive}, wantErr: true},
		{name: "missing source", args: []string{"compress", archive, filepath.Join(src, "missing")}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Exit(func(int) {}))
			require.NoError(t, err)

			_, err = parser.Parse(tc.args)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, &cli)
		})
	}
}

func TestCompressAndExtract(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "f.txt"), []byte("content"), 0o644))

	archive := filepath.Join(root, "data.tar.zst")
	dst := filepath.Join(root, "out")
	g := testGlobals()

	compress := &CompressCmd{Archive: archive, Source: src, Level: 3}
	require.NoError(t, compress.Run(g))

	dryRun := &ExtractCmd{Archive: archive, Destination: dst, DryRun: true, MaxInputSize: -1, MaxOutput: -1, MaxWriters: 8}
	require.NoError(t, dryRun.Run(g))
	_, err := os.Stat(dst)
	require.ErrorIs(t, err, os.ErrNotExist)

	missing := &ExtractCmd{Archive: archive, Destination: dst, MaxInputSize: -1, MaxOutput: -1, MaxWriters: 8}
	err = missing.Run(g)
	require.ErrorIs(t, err, tzst.ErrDestinationNotExist)
	require.Contains(t, err.Error(), "extracting")

	extract := &ExtractCmd{Archive: archive, Destination: dst, CreateDestination: true, MaxInputSize: -1, MaxOutput: -1, MaxWriters: 8}
	require.NoError(t, extract.Run(g))

	got, err := os.ReadFile(filepath.Join(dst, "data", "sub", "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "content", string(got))
}

func TestCompressInvalidLevel(t *testing.T) {
	compress := &CompressCmd{Archive: filepath.Join(t.TempDir(), "a.tar.zst"), Source: t.TempDir(), Level: 30}
	require.ErrorIs(t, compress.Run(testGlobals()), tzst.ErrEngineInit)
}
