// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tzst

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-tzst/config"
	"github.com/hashicorp/go-tzst/target"
)

// ensureDestination checks that dst exists. If it is missing and
// config.CreateDestination() returns true, it is created with
// config.CustomCreateDirMode(), otherwise ErrDestinationNotExist is returned.
func ensureDestination(t target.Target, dst string, cfg *config.Config) error {
	// an empty destination is the current directory
	if len(dst) == 0 {
		return nil
	}

	_, err := t.Lstat(dst)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: invalid destination: %w", ErrIO, err)
	case !cfg.CreateDestination():
		return fmt.Errorf("%w: %s", ErrDestinationNotExist, dst)
	}

	if err := t.CreateDir(dst, cfg.CustomCreateDirMode()); err != nil {
		return fmt.Errorf("%w: failed to create destination directory: %w", ErrIO, err)
	}
	cfg.Logger().Info("created destination directory", "path", dst)
	return nil
}

// createDir is a wrapper around the CreateDir function
//
// The slash separated name is checked for path traversal and symlinks
// before the directory is created below dst.
func createDir(t target.Target, dst string, name string, cfg *config.Config) error {
	if len(name) == 0 {
		return fmt.Errorf("cannot create directory without name")
	}

	// perform security check to ensure that the path is safe to write to
	if err := securityCheck(t, dst, name); err != nil {
		return err
	}

	path := filepath.Join(dst, localPath(name))
	if path == "" || path == "." {
		return nil
	}
	if err := t.CreateDir(path, cfg.CustomCreateDirMode()); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// createFile is a wrapper around the CreateFile function
//
// The slash separated name is checked for path traversal and symlinks,
// the parent directory is expected to exist. The number of bytes written
// is returned.
func createFile(t target.Target, dst string, name string, src io.Reader, mode fs.FileMode, cfg *config.Config) (int64, error) {
	if len(name) == 0 {
		return 0, fmt.Errorf("cannot create file without name")
	}

	// ensure that the path is local and does not contain symlinks
	if err := securityCheck(t, dst, name); err != nil {
		return 0, err
	}

	path := filepath.Join(dst, localPath(name))
	n, err := t.CreateFile(path, src, mode, cfg.Overwrite(), -1)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return n, nil
}

// securityCheck checks if the slash separated path is local to dst and
// that no existing element of the path is a symlink.
//
// The function returns ErrUnsafePath if the path is absolute, contains
// path traversal or if a symlink is detected.
func securityCheck(t target.Target, dst string, path string) error {
	if strings.HasPrefix(path, "/") || filepath.IsAbs(path) {
		return fmt.Errorf("%w: absolute path %q", ErrUnsafePath, path)
	}

	local := localPath(path)
	if local != "." && !filepath.IsLocal(local) {
		return fmt.Errorf("%w: path traversal detected in %q", ErrUnsafePath, path)
	}

	// check each element of the path
	elements := strings.Split(local, string(os.PathSeparator))
	for i := range elements {
		checkPath := filepath.Join(dst, filepath.Join(elements[:i+1]...))
		if checkPath == "." || checkPath == "" {
			continue
		}

		isSymlink, err := isSymlink(t, checkPath)
		if err != nil {
			return fmt.Errorf("%w: invalid path: %w", ErrIO, err)
		}
		if isSymlink {
			return fmt.Errorf("%w: symlink in path %q", ErrUnsafePath, path)
		}
	}

	return nil
}

// isSymlink returns true if path exists and is a symlink.
func isSymlink(t target.Target, path string) (bool, error) {
	stat, err := t.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check path: %w", err)
	}
	if stat == nil {
		return false, fmt.Errorf("failed to get stats")
	}
	return stat.Mode()&fs.ModeSymlink != 0, nil
}

// localPath converts a slash separated member path into an OS specific
// relative path.
func localPath(name string) string {
	return filepath.Join(strings.Split(strings.TrimSuffix(name, "/"), "/")...)
}
