// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package otelsink reports intercepted calls as OpenTelemetry spans. Use it
// only in programs that set up their TracerProvider before the first
// intercepted call; the default stderr sink has no such requirement.
package otelsink

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/entryprobe/entryprobe/pkg/probe"
)

const (
	scopeName = "github.com/entryprobe/entryprobe/pkg/probe/otelsink"
	spanName  = "entryprobe.call"

	AttrFunction = attribute.Key("code.function")
	AttrArgs     = attribute.Key("entryprobe.args")
	AttrStack    = attribute.Key("entryprobe.stack")
)

type Sink struct {
	tracer trace.Tracer
}

type Option func(*config)

type config struct {
	provider trace.TracerProvider
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.provider = tp }
}

// New returns a sink bound to the given provider, or to the global one. The
// global tracer delegates to whatever provider the program installs later.
func New(opts ...Option) *Sink {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.provider == nil {
		return &Sink{tracer: otel.Tracer(scopeName)}
	}
	return &Sink{tracer: cfg.provider.Tracer(scopeName)}
}

// Emit records a zero-length span stamped with the time of the call.
func (s *Sink) Emit(rec *probe.Record) {
	stack := make([]string, len(rec.Stack))
	for i, f := range rec.Stack {
		stack[i] = f.Function + " (" + f.File + ":" + strconv.Itoa(f.Line) + ")"
	}
	_, span := s.tracer.Start(context.Background(), spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(rec.Time),
		trace.WithAttributes(
			AttrFunction.String(rec.Site),
			AttrArgs.StringSlice(rec.Args),
			AttrStack.StringSlice(stack),
		),
	)
	span.End(trace.WithTimestamp(rec.Time))
}
