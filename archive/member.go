// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"io/fs"
	"strings"
)

// Kind is the type of an archive member.
type Kind int

const (
	// File is a regular file.
	File Kind = iota

	// Directory is a directory. Its path ends with a slash.
	Directory
)

// String returns a readable name of the kind.
func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	}
	return "unknown"
}

// Member is one logical entry of an archive.
type Member struct {
	// Path is the slash separated path inside the archive. Directory paths
	// end with a slash.
	Path string

	// Kind is the member type.
	Kind Kind

	// Mode holds the permission bits stored in the header.
	Mode fs.FileMode

	// Content is the file content. It is empty for directories.
	Content []byte
}

// IsDir returns true if the member is a directory.
func (m *Member) IsDir() bool {
	return m.Kind == Directory
}

// dirPath returns p with exactly one trailing slash.
func dirPath(p string) string {
	return strings.TrimRight(p, "/") + "/"
}

// parents returns all ancestor directories of p, outermost first, each
// with a trailing slash. For "a/b/c.txt" it returns "a/" and "a/b/".
func parents(p string) []string {
	p = strings.TrimRight(p, "/")
	var dirs []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && i > 0 {
			dirs = append(dirs, p[:i+1])
		}
	}
	return dirs
}
