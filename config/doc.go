// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config provides a configuration struct and options to adjust the
// configuration of archive and extract calls.
//
// The configuration options can be adjusted using the option pattern style.
// The default configuration produces reproducible archives (fixed
// modification time), never overwrites existing files and rejects members
// that would escape the destination.
package config
