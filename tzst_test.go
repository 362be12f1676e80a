// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tzst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-tzst/archive"
	"github.com/hashicorp/go-tzst/catalog"
	"github.com/hashicorp/go-tzst/config"
	"github.com/hashicorp/go-tzst/target"
	"github.com/hashicorp/go-tzst/target/mock"
	"github.com/hashicorp/go-tzst/telemetry"
	"github.com/hashicorp/go-tzst/zstream"
	"github.com/stretchr/testify/require"
)

// strategies runs a test with the overlapped and the sequential pipeline
var strategies = []struct {
	name       string
	concurrent bool
}{
	{name: "overlapped", concurrent: true},
	{name: "sequential", concurrent: false},
}

var longDir = strings.Repeat("d", 150)

// createSource creates the directory "project" below a temporary directory
// and returns its path together with the expected files and directories,
// keyed by their slash separated path inside the archive.
func createSource(t *testing.T) (string, map[string][]byte, []string) {
	t.Helper()

	rnd := rand.New(rand.NewSource(42))
	big := make([]byte, 3*zstream.CompressInSize+17)
	rnd.Read(big)

	files := map[string][]byte{
		"project/a.txt":                 []byte("hello world\n"),
		"project/zero.txt":              {},
		"project/sub/big.bin":           big,
		"project/sub/deeper/c.txt":      bytes.Repeat([]byte("tzst"), 1000),
		"project/.hidden":               []byte("secret"),
		"project/" + longDir + "/x.txt": []byte("long path"),
	}
	dirs := []string{
		"project/empty",
		"project/sub",
		"project/sub/deeper",
		"project/" + longDir,
	}

	src := filepath.Join(t.TempDir(), "project")
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(filepath.Dir(src), filepath.FromSlash(d)), 0o755))
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(src), filepath.FromSlash(name)), content, 0o644))
	}
	return src, files, dirs
}

// compressMembers encodes and compresses members into an archive.
func compressMembers(t *testing.T, members ...*archive.Member) []byte {
	t.Helper()
	var tarBuf, out bytes.Buffer
	require.NoError(t, archive.Encode(members, &tarBuf))
	_, err := zstream.Compress(context.Background(), &tarBuf, &out)
	require.NoError(t, err)
	return out.Bytes()
}

func TestRoundTripDisk(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			src, files, dirs := createSource(t)
			archivePath := filepath.Join(t.TempDir(), "project.tar.zst")
			dst := t.TempDir()

			cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
			require.NoError(t, Archive(context.Background(), src, archivePath, cfg))
			require.NoError(t, Extract(context.Background(), archivePath, dst, target.NewDisk(), cfg))

			for name, want := range files {
				got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
				require.NoError(t, err, name)
				require.True(t, bytes.Equal(want, got), "content of %s differs", name)
			}
			for _, d := range dirs {
				stat, err := os.Stat(filepath.Join(dst, filepath.FromSlash(d)))
				require.NoError(t, err, d)
				require.True(t, stat.IsDir(), d)
			}
		})
	}
}

func TestRoundTripMemory(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			src, files, _ := createSource(t)
			cfg := config.NewConfig(
				config.WithConcurrent(s.concurrent),
				config.WithCreateDestination(true),
				config.WithMaxWriters(2),
				config.WithQueueDepth(1),
			)

			var buf bytes.Buffer
			require.NoError(t, ArchiveTo(context.Background(), src, &buf, cfg))

			m := target.NewMemory()
			require.NoError(t, ExtractFrom(context.Background(), &buf, "out", m, cfg))

			for name, want := range files {
				got, err := m.ReadFile("out/" + name)
				require.NoError(t, err, name)
				require.True(t, bytes.Equal(want, got), "content of %s differs", name)
			}
			stat, err := m.Lstat("out/project/empty")
			require.NoError(t, err)
			require.True(t, stat.IsDir())
		})
	}
}

func TestArchiveLayout(t *testing.T) {
	src, _, _ := createSource(t)

	cases := []struct {
		name    string
		opts    []config.ConfigOption
		want    []string
		notWant []string
	}{
		{
			name:    "default",
			want:    []string{"project/", "project/a.txt", "project/.hidden", "project/empty/"},
			notWant: []string{"a.txt"},
		},
		{
			name:    "prefix",
			opts:    []config.ConfigOption{config.WithPrefix("release/v1/")},
			want:    []string{"release/", "release/v1/", "release/v1/project/", "release/v1/project/a.txt"},
			notWant: []string{"project/a.txt"},
		},
		{
			name:    "skip hidden",
			opts:    []config.ConfigOption{config.WithSkipHidden(true)},
			want:    []string{"project/a.txt"},
			notWant: []string{"project/.hidden"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var compressed, tarBuf bytes.Buffer
			require.NoError(t, ArchiveTo(context.Background(), src, &compressed, config.NewConfig(tc.opts...)))
			_, err := zstream.Decompress(context.Background(), &compressed, &tarBuf)
			require.NoError(t, err)

			paths := map[string]bool{}
			require.NoError(t, archive.Decode(&tarBuf, func(m *archive.Member) error {
				paths[m.Path] = true
				return nil
			}))
			for _, p := range tc.want {
				require.True(t, paths[p], "missing member %s", p)
			}
			for _, p := range tc.notWant {
				require.False(t, paths[p], "unexpected member %s", p)
			}
		})
	}
}

func TestArchiveFilesOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0o644))

	entries := []catalog.Entry{
		{SourcePath: filepath.Join(dir, "b"), TargetPath: "x/y/b", Size: 1},
		{SourcePath: filepath.Join(dir, "a"), TargetPath: "x/a", Size: 1},
	}

	var compressed, tarBuf bytes.Buffer
	require.NoError(t, ArchiveFiles(context.Background(), entries, &compressed, config.NewConfig()))
	_, err := zstream.Decompress(context.Background(), &compressed, &tarBuf)
	require.NoError(t, err)

	var got []string
	require.NoError(t, archive.Decode(&tarBuf, func(m *archive.Member) error {
		got = append(got, m.Path)
		return nil
	}))
	want := []string{"x/", "x/y/", "x/y/b", "x/a"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("member order mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveErrors(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			src, _, _ := createSource(t)

			t.Run("invalid level", func(t *testing.T) {
				cfg := config.NewConfig(config.WithConcurrent(s.concurrent), config.WithCompressionLevel(99))
				err := ArchiveTo(context.Background(), src, io.Discard, cfg)
				require.ErrorIs(t, err, ErrEngineInit)
			})

			t.Run("missing source", func(t *testing.T) {
				cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
				err := ArchiveTo(context.Background(), filepath.Join(src, "missing"), io.Discard, cfg)
				require.ErrorIs(t, err, ErrIO)
			})

			t.Run("failing sink", func(t *testing.T) {
				cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
				err := ArchiveTo(context.Background(), src, failingWriter{}, cfg)
				require.ErrorIs(t, err, ErrIO)
			})

			t.Run("canceled context", func(t *testing.T) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
				err := ArchiveTo(ctx, src, io.Discard, cfg)
				require.ErrorIs(t, err, context.Canceled)
			})

			t.Run("unwritable archive", func(t *testing.T) {
				cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
				err := Archive(context.Background(), src, filepath.Join(src, "missing", "out.tar.zst"), cfg)
				require.ErrorIs(t, err, ErrIO)
			})
		})
	}
}

func TestExtractErrors(t *testing.T) {
	valid := compressMembers(t, &archive.Member{Path: "a.txt", Content: bytes.Repeat([]byte("a"), 4096)})

	cases := []struct {
		name    string
		input   []byte
		dst     func(t *testing.T) string
		opts    []config.ConfigOption
		wantErr []error
	}{
		{
			name:    "empty input",
			input:   nil,
			wantErr: []error{ErrEmptyInput},
		},
		{
			name:    "not compressed",
			input:   bytes.Repeat([]byte("x"), 1024),
			wantErr: []error{ErrEngineStream},
		},
		{
			name:    "truncated",
			input:   valid[:len(valid)/2],
			wantErr: []error{ErrEngineStream, ErrFormat},
		},
		{
			name:    "max input size",
			input:   valid,
			opts:    []config.ConfigOption{config.WithMaxInputSize(10)},
			wantErr: []error{ErrMaxInputSizeExceeded},
		},
		{
			name:    "max output size",
			input:   valid,
			opts:    []config.ConfigOption{config.WithMaxOutputSize(600)},
			wantErr: []error{ErrFormat},
		},
		{
			name:    "path traversal",
			input:   compressMembers(t, &archive.Member{Path: "../evil.txt", Content: []byte("x")}),
			wantErr: []error{ErrUnsafePath},
		},
		{
			name:    "absolute path",
			input:   compressMembers(t, &archive.Member{Path: "/evil.txt", Content: []byte("x")}),
			wantErr: []error{ErrUnsafePath},
		},
		{
			name:    "missing destination",
			input:   valid,
			dst:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
			wantErr: []error{ErrDestinationNotExist},
		},
	}

	for _, s := range strategies {
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%s/%s", s.name, tc.name), func(t *testing.T) {
				dst := t.TempDir()
				if tc.dst != nil {
					dst = tc.dst(t)
				}
				cfg := config.NewConfig(append(tc.opts, config.WithConcurrent(s.concurrent))...)
				err := ExtractFrom(context.Background(), bytes.NewReader(tc.input), dst, target.NewDisk(), cfg)
				require.Error(t, err)

				for _, want := range tc.wantErr {
					if errors.Is(err, want) {
						return
					}
				}
				t.Errorf("error %v is none of %v", err, tc.wantErr)
			})
		}
	}
}

func TestExtractCreateDestination(t *testing.T) {
	input := compressMembers(t, &archive.Member{Path: "a/b.txt", Content: []byte("b")})
	dst := filepath.Join(t.TempDir(), "new", "dst")

	cfg := config.NewConfig(config.WithCreateDestination(true))
	require.NoError(t, ExtractFrom(context.Background(), bytes.NewReader(input), dst, target.NewDisk(), cfg))

	got, err := os.ReadFile(filepath.Join(dst, "a", "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "b", string(got))
}

func TestExtractOverwrite(t *testing.T) {
	input := compressMembers(t, &archive.Member{Path: "a.txt", Content: []byte("new")})
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "a.txt"), []byte("old"), 0o644))

	err := ExtractFrom(context.Background(), bytes.NewReader(input), dst, target.NewDisk(), config.NewConfig())
	require.ErrorIs(t, err, fs.ErrExist)

	cfg := config.NewConfig(config.WithOverwrite(true))
	require.NoError(t, ExtractFrom(context.Background(), bytes.NewReader(input), dst, target.NewDisk(), cfg))
	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}

func TestExtractSymlinkInPath(t *testing.T) {
	dst := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(dst, "link")); err != nil {
		t.Skipf("cannot create symlink: %s", err)
	}

	input := compressMembers(t, &archive.Member{Path: "link/evil.txt", Content: []byte("x")})
	err := ExtractFrom(context.Background(), bytes.NewReader(input), dst, target.NewDisk(), config.NewConfig())
	require.ErrorIs(t, err, ErrUnsafePath)

	_, err = os.Stat(filepath.Join(outside, "evil.txt"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestExtractCanceledContext(t *testing.T) {
	input := compressMembers(t, &archive.Member{Path: "a.txt", Content: []byte("a")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
			err := ExtractFrom(ctx, bytes.NewReader(input), t.TempDir(), target.NewDisk(), cfg)
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestExtractDryRun(t *testing.T) {
	input := compressMembers(t,
		&archive.Member{Path: "a/b.txt", Content: []byte("bb")},
		&archive.Member{Path: "c.txt", Content: []byte("c")},
	)

	var td *telemetry.Data
	cfg := config.NewConfig(
		config.WithCreateDestination(true),
		config.WithTelemetryHook(func(_ context.Context, d *telemetry.Data) { td = d }),
	)
	require.NoError(t, ExtractFrom(context.Background(), bytes.NewReader(input), "out", target.NewNoop(), cfg))

	require.NotNil(t, td)
	require.EqualValues(t, 2, td.Files)
	require.EqualValues(t, 1, td.Dirs)
	require.EqualValues(t, 3, td.OutputSize)
}

func TestWriterFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock.NewMockTarget(ctrl)

	input := compressMembers(t,
		&archive.Member{Path: "a.txt", Content: []byte("a")},
		&archive.Member{Path: "b.txt", Content: []byte("b")},
		&archive.Member{Path: "c.txt", Content: []byte("c")},
	)

	errDiskFull := errors.New("disk full")
	copyContent := func(_ string, src io.Reader, _ fs.FileMode, _ bool, _ int64) (int64, error) {
		return io.Copy(io.Discard, src)
	}

	m.EXPECT().Lstat(gomock.Any()).Return(nil, fs.ErrNotExist).AnyTimes()
	m.EXPECT().CreateFile("a.txt", gomock.Any(), gomock.Any(), false, int64(-1)).DoAndReturn(copyContent)
	m.EXPECT().CreateFile("b.txt", gomock.Any(), gomock.Any(), false, int64(-1)).Return(int64(0), errDiskFull)
	m.EXPECT().CreateFile("c.txt", gomock.Any(), gomock.Any(), false, int64(-1)).DoAndReturn(copyContent)

	var td *telemetry.Data
	cfg := config.NewConfig(
		config.WithMaxWriters(1),
		config.WithTelemetryHook(func(_ context.Context, d *telemetry.Data) { td = d }),
	)
	err := ExtractFrom(context.Background(), bytes.NewReader(input), "", m, cfg)
	require.ErrorIs(t, err, errDiskFull)
	require.ErrorIs(t, err, ErrIO)
	require.Contains(t, err.Error(), "b.txt")

	require.EqualValues(t, 2, td.Files)
	require.EqualValues(t, 1, td.Errors)
	require.ErrorIs(t, td.LastError, errDiskFull)
}

func TestWriterFailureBeforeTruncation(t *testing.T) {
	var tarBuf bytes.Buffer
	require.NoError(t, archive.Encode([]*archive.Member{
		{Path: "a.txt", Content: []byte("a")},
		{Path: "b.txt", Content: bytes.Repeat([]byte("b"), 5000)},
	}, &tarBuf))

	// cut the archive inside the content of b.txt
	var input bytes.Buffer
	_, err := zstream.Compress(context.Background(), bytes.NewReader(tarBuf.Bytes()[:5*archive.BlockSize]), &input)
	require.NoError(t, err)

	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			m := target.NewMemory()
			_, err := m.CreateFile("a.txt", strings.NewReader("existing"), 0o644, false, -1)
			require.NoError(t, err)

			cfg := config.NewConfig(config.WithConcurrent(s.concurrent))
			err = ExtractFrom(context.Background(), bytes.NewReader(input.Bytes()), "", m, cfg)
			require.ErrorIs(t, err, fs.ErrExist)
			require.ErrorIs(t, err, ErrIO)
			require.Contains(t, err.Error(), "a.txt")

			got, err := m.ReadFile("a.txt")
			require.NoError(t, err)
			require.Equal(t, "existing", string(got))
		})
	}
}

func TestTelemetry(t *testing.T) {
	src, files, _ := createSource(t)

	var archived, extracted *telemetry.Data
	var buf bytes.Buffer

	cfg := config.NewConfig(config.WithTelemetryHook(func(_ context.Context, d *telemetry.Data) { archived = d }))
	require.NoError(t, ArchiveTo(context.Background(), src, &buf, cfg))
	size := int64(buf.Len())

	cfg = config.NewConfig(config.WithTelemetryHook(func(_ context.Context, d *telemetry.Data) { extracted = d }))
	require.NoError(t, ExtractFrom(context.Background(), &buf, t.TempDir(), target.NewDisk(), cfg))

	var contentSize int64
	for _, c := range files {
		contentSize += int64(len(c))
	}

	require.Equal(t, telemetry.OperationArchive, archived.Operation)
	require.EqualValues(t, len(files), archived.Files)
	require.EqualValues(t, 5, archived.Dirs)
	require.Equal(t, contentSize, archived.InputSize)
	require.Equal(t, size, archived.OutputSize)
	require.Zero(t, archived.Errors)

	require.Equal(t, telemetry.OperationExtract, extracted.Operation)
	require.EqualValues(t, len(files), extracted.Files)
	require.EqualValues(t, 5, extracted.Dirs)
	require.Equal(t, size, extracted.InputSize)
	require.Equal(t, contentSize, extracted.OutputSize)
	require.Zero(t, extracted.SkippedMembers)
	require.NoError(t, extracted.LastError)
}

func TestMemberPrefix(t *testing.T) {
	cases := []struct {
		srcDir string
		prefix string
		want   string
	}{
		{srcDir: "/tmp/project", want: "project"},
		{srcDir: "/tmp/project/", want: "project"},
		{srcDir: "/tmp/project", prefix: "release", want: "release/project"},
		{srcDir: "/tmp/project", prefix: "release/", want: "release/project"},
		{srcDir: ".", prefix: "release", want: "release"},
		{srcDir: ".", want: ""},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s+%s", tc.srcDir, tc.prefix), func(t *testing.T) {
			if got := memberPrefix(tc.srcDir, tc.prefix); got != tc.want {
				t.Errorf("memberPrefix(%q, %q) = %q, want %q", tc.srcDir, tc.prefix, got, tc.want)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink failed")
}
