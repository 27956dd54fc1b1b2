// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package otelsink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/entryprobe/entryprobe/pkg/probe"
)

func TestSink_EmitsOneSpanPerRecord(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	p := probe.New(New(WithTracerProvider(tp)), probe.WithClock(func() time.Time { return at }))

	p.Enter("a.b.(*C).m", "hello", 3)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, spanName, span.Name())
	assert.Equal(t, at, span.StartTime())
	assert.Equal(t, at, span.EndTime())

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "a.b.(*C).m", attrs[AttrFunction].AsString())
	assert.Equal(t, []string{"hello", "3"}, attrs[AttrArgs].AsStringSlice())
	stack := attrs[AttrStack].AsStringSlice()
	require.NotEmpty(t, stack)
	assert.Contains(t, stack[0], "TestSink_EmitsOneSpanPerRecord")
}

func TestSink_GlobalProviderIsNoopByDefault(t *testing.T) {
	s := New()
	assert.NotPanics(t, func() {
		s.Emit(&probe.Record{Site: "x", Time: time.Now()})
	})
}
