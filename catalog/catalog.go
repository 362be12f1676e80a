// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package catalog lists the content of a source directory in the order in
// which it is archived.
package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one file or directory found below the scanned root.
type Entry struct {
	// SourcePath is the location on disk, usable with os.Open.
	SourcePath string

	// TargetPath is the slash separated path relative to the scanned root.
	// Directories carry a trailing slash.
	TargetPath string

	// Size of a regular file in bytes. Zero for directories.
	Size int64

	// IsDir is true for directories.
	IsDir bool
}

// Scan walks root recursively and returns its directories and regular files
// in lexical order, parents before children. The root itself is not part of
// the result. Other file types, e.g. symlinks or devices, are left out.
//
// If skipHidden is true, files and directories whose name starts with a dot
// are left out together with their content.
func Scan(root string, skipHidden bool) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot scan source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot scan source: %w: not a directory: %s", fs.ErrInvalid, root)
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		if skipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			entries = append(entries, Entry{SourcePath: path, TargetPath: rel + "/", IsDir: true})
		case d.Type().IsRegular():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			entries = append(entries, Entry{SourcePath: path, TargetPath: rel, Size: fi.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot scan source: %w", err)
	}

	return entries, nil
}

// BaseName returns the last element of dir, ignoring trailing separators.
// It returns an empty string for a root or empty path.
func BaseName(dir string) string {
	dir = strings.TrimRight(dir, `/\`)
	if i := strings.LastIndexAny(dir, `/\`); i >= 0 {
		dir = dir[i+1:]
	}
	if dir == "." || dir == ".." {
		return ""
	}
	return dir
}

// JoinPath joins two path segments with a single slash. Surrounding double
// quotes are removed from both segments, trailing separators from left and
// leading separators from right. Both '/' and '\' count as separators.
//
// An empty left segment yields right unchanged apart from the trimming, so
// the result never turns into an absolute path by accident.
func JoinPath(left, right string) string {
	left = strings.TrimRight(trimQuotes(left), `/\`)
	right = strings.TrimLeft(trimQuotes(right), `/\`)
	if left == "" {
		return right
	}
	return left + "/" + right
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
