// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package tzst packages a directory tree into a zstandard compressed tar
// archive and extracts such archives again.
//
// [Archive] scans a source directory, encodes its files and directories with
// the archive package and compresses the stream with the zstream package.
// [Extract] reverses the process and writes the members to a [target.Target],
// e.g. the local disk or an in-memory filesystem.
//
// Both directions either run sequentially, materializing the intermediate
// tar stream in memory, or overlapped, where producer and consumer exchange
// chunks through a bounded [pipeline.Queue]. During an overlapped
// extraction, files are written by background writers so writing one file
// does not stall decoding the next.
//
// Configuration is done using the [config.Config]. Telemetry data is
// captured for every call and handed to the configured [telemetry.Hook].
package tzst
