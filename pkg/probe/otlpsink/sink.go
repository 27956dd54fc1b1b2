// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package otlpsink appends intercepted calls to a file as OTLP/JSON log
// records, one LogsData document per line, for collectors that tail files.
package otlpsink

import (
	"os"
	"path/filepath"
	"strconv"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"

	"github.com/entryprobe/entryprobe/pkg/probe"
)

const scopeName = "github.com/entryprobe/entryprobe/pkg/probe/otlpsink"

type Sink struct {
	path    string
	service string
	m       plog.JSONMarshaler
}

func New(path string) *Sink {
	return &Sink{
		path:    path,
		service: filepath.Base(os.Args[0]),
	}
}

func (s *Sink) logs(rec *probe.Record) plog.Logs {
	logs := plog.NewLogs()
	rl := logs.ResourceLogs().AppendEmpty()
	rl.Resource().Attributes().PutStr("service.name", s.service)
	sl := rl.ScopeLogs().AppendEmpty()
	sl.Scope().SetName(scopeName)

	lr := sl.LogRecords().AppendEmpty()
	ts := pcommon.NewTimestampFromTime(rec.Time)
	lr.SetTimestamp(ts)
	lr.SetObservedTimestamp(ts)
	lr.SetSeverityNumber(plog.SeverityNumberDebug)
	lr.SetSeverityText("DEBUG")
	lr.Body().SetStr(rec.Site + " called")

	attrs := lr.Attributes()
	attrs.PutStr("code.function", rec.Site)
	args := attrs.PutEmptySlice("entryprobe.args")
	for _, a := range rec.Args {
		args.AppendEmpty().SetStr(a)
	}
	stack := attrs.PutEmptySlice("entryprobe.stack")
	for _, f := range rec.Stack {
		stack.AppendEmpty().SetStr(f.Function + " (" + f.File + ":" + strconv.Itoa(f.Line) + ")")
	}
	return logs
}

// Emit appends one line to the file. Errors are dropped: the intercepted
// call must not notice a broken sink.
func (s *Sink) Emit(rec *probe.Record) {
	data, err := s.m.MarshalLogs(s.logs(rec))
	if err != nil {
		return
	}
	data = append(data, '\n')
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	_, _ = f.Write(data)
	_ = f.Close()
}
