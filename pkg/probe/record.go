// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"runtime"
	"strings"
	"time"
)

// Frame is one entry of a synthesized call stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Record describes one intercepted call. It is created on every call,
// handed to a Sink and never retained by the probe.
type Record struct {
	// Site is the qualified name of the intercepted function, e.g.
	// "example.com/a/b.(*C).m".
	Site string
	// Args holds the display form of each captured argument, in the
	// configured order.
	Args []string
	// Stack starts at the intercepted function and walks towards the root.
	Stack []Frame
	Time  time.Time
}

const probePkgPrefix = "github.com/entryprobe/entryprobe/pkg/probe."

// captureStack walks the goroutine stack above the probe. The first frame
// reported is the intercepted function itself.
func captureStack(maxFrames int) []Frame {
	pcs := make([]uintptr, maxFrames+8)
	// runtime.Callers, captureStack
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]Frame, 0, n)
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, probePkgPrefix) {
			stack = append(stack, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
			if len(stack) == maxFrames {
				break
			}
		}
		if !more {
			break
		}
	}
	return stack
}
