// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"io"
	"os"
	"strconv"
	"strings"
)

// Sink receives every Record produced by a Probe. Emit runs inline on the
// goroutine of the intercepted call, so it must not block for long and must
// not keep the record.
type Sink interface {
	Emit(rec *Record)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(rec *Record)

func (f SinkFunc) Emit(rec *Record) { f(rec) }

const linePrefix = "[entryprobe] "

// WriterSink renders records as text and writes each record with a single
// Write call, so records from concurrent goroutines interleave per record
// rather than per line.
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Stderr is the default sink. It writes straight to the process error stream
// and does not depend on any logging setup of the host program, which may not
// be initialized yet when the first intercepted call happens.
func Stderr() *WriterSink {
	return NewWriterSink(os.Stderr)
}

func (s *WriterSink) Emit(rec *Record) {
	_, _ = io.WriteString(s.w, Format(rec))
}

// Format renders a record the way WriterSink prints it.
func Format(rec *Record) string {
	var b strings.Builder
	b.WriteString(linePrefix)
	b.WriteString(rec.Site)
	switch len(rec.Args) {
	case 0:
		b.WriteString(" called")
	case 1:
		b.WriteString(" called with argument: ")
		b.WriteString(rec.Args[0])
	default:
		b.WriteString(" called with arguments: ")
		b.WriteString(strings.Join(rec.Args, ", "))
	}
	b.WriteByte('\n')
	b.WriteString(linePrefix)
	b.WriteString("current call stack:\n")
	for _, f := range rec.Stack {
		b.WriteByte('\t')
		b.WriteString(f.Function)
		b.WriteString("\n\t\t")
		b.WriteString(f.File)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
		b.WriteByte('\n')
	}
	return b.String()
}
