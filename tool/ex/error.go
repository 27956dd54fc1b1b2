// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package ex

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// -----------------------------------------------------------------------------
// Extended Error Handling with Stack Traces
//
// Errors are created with a stack trace at their origin and then simply
// returned up the call stack. Wrap or Wrapf may be used at any level to add
// context that is not available at the origin.
//
//    if err := some_lib.DoSomething(); err != nil {
//        return ex.Wrapf(err, "additional context for the error")
//    }
//    if badValue {
//        return ex.Newf("bad value: %v", value)
//    }
//
// Wrapped errors keep their cause, so sentinel errors still work with
// errors.Is:
//
//    return ex.Wrapf(ErrTargetNotLoaded, "package %s", path)
//
// Use Fatalf or Fatal to exit the tool with a stackful error. It prints the
// message chain and the stack trace to the standard error output.

const (
	numSkipFrame = 4 // skip the {New,Newf,Wrap,Wrapf} caller
	modPrefix    = "github.com/entryprobe/entryprobe/"
)

// stackfulError represents an error with stack trace information
type stackfulError struct {
	message []string
	frame   []string
	wrapped error
}

func (e *stackfulError) Error() string { return strings.Join(e.message, "\n") }
func (e *stackfulError) Unwrap() error { return e.wrapped }

func captureStack() []string {
	const initFrames = 30
	frameList := make([]string, 0)
	pcs := make([]uintptr, initFrames)
	n := runtime.Callers(numSkipFrame, pcs)
	if n == 0 {
		return frameList
	}
	pcs = pcs[:n]
	frames := runtime.CallersFrames(pcs)
	cnt := 0
	for {
		frame, more := frames.Next()
		fnName := strings.TrimPrefix(frame.Function, modPrefix)
		frameList = append(frameList, fmt.Sprintf("[%d]%s:%d %s", cnt, frame.File, frame.Line, fnName))
		cnt++
		if !more {
			break
		}
	}
	return frameList
}

// wrapOrCreate wraps an error with stack trace information and a formatted
// message. If the error is already a stackfulError, it is decorated with the
// new message instead.
func wrapOrCreate(previousErr error, format string, args ...any) error {
	se := &stackfulError{}
	if errors.As(previousErr, &se) {
		attach := fmt.Sprintf(format, args...)
		if attach != "" {
			se.message = append(se.message, attach)
		}
		return previousErr
	}
	errMsg := fmt.Sprintf(format, args...)
	if previousErr != nil {
		if errMsg == "" {
			errMsg = previousErr.Error()
		} else {
			errMsg = fmt.Sprintf("%s: %s", errMsg, previousErr.Error())
		}
	}
	return &stackfulError{
		message: []string{errMsg},
		frame:   captureStack(),
		wrapped: previousErr,
	}
}

func Wrap(previousErr error) error {
	return wrapOrCreate(previousErr, "")
}

func Wrapf(previousErr error, format string, args ...any) error {
	return wrapOrCreate(previousErr, format, args...)
}

func New(message string) error {
	return wrapOrCreate(nil, "%s", message)
}

func Newf(format string, args ...any) error {
	return wrapOrCreate(nil, format, args...)
}

func Fatalf(format string, args ...any) {
	Fatal(Newf(format, args...))
}

func Fatal(err error) {
	if err == nil {
		panic("Fatal error: unknown")
	}
	e := &stackfulError{}
	if errors.As(err, &e) {
		var em strings.Builder
		for i, m := range e.message {
			em.WriteString(fmt.Sprintf("[%d] %s\n", i, m))
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error:\n%s\nStack:\n%s\n",
			em.String(), strings.Join(e.frame, "\n"))
		os.Exit(1)
	}
	panic(err)
}
