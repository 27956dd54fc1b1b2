// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkg carries the sources of the runtime packages. The build tool
// writes them into the build temp directory and points the module being
// built at that copy, so no published version of the probe is needed.
package pkg

import "embed"

//go:embed probe
var Sources embed.FS

// Root is the directory of Sources holding the probe package.
const Root = "probe"
