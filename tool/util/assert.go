// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package util

import "github.com/entryprobe/entryprobe/tool/ex"

func Assert(condition bool, message string) {
	if !condition {
		ex.Fatalf("Assertion failed: %s", message)
	}
}
