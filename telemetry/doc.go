// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package telemetry captures what happened during one archive or extract
// call.
//
// The package provides a struct type [Data] that is handed to a [Hook]
// once the call finished, successful or not.
package telemetry
