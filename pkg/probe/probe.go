// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe is linked into instrumented programs. Woven functions call
// Enter on entry; Enter turns the call into a Record and hands it to a Sink.
//
// Nothing in this package may panic into, block, or otherwise change the
// behavior of the intercepted call. Failures are absorbed: an argument that
// cannot be displayed becomes a placeholder, and a sink that panics is
// ignored.
package probe

import (
	"sync/atomic"
	"time"
	_ "unsafe" // for go:linkname
)

const defaultMaxFrames = 64

// Probe turns intercepted calls into records. It has no mutable state and is
// safe for concurrent use by any number of goroutines.
type Probe struct {
	sink      Sink
	maxFrames int
	now       func() time.Time
}

type Option func(*Probe)

// WithMaxFrames bounds the number of stack frames captured per record.
func WithMaxFrames(n int) Option {
	return func(p *Probe) {
		if n > 0 {
			p.maxFrames = n
		}
	}
}

// WithClock replaces the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(p *Probe) { p.now = now }
}

func New(sink Sink, opts ...Option) *Probe {
	p := &Probe{
		sink:      sink,
		maxFrames: defaultMaxFrames,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enter records a call of site with the captured arguments. It never panics.
func (p *Probe) Enter(site string, args ...any) {
	defer func() { _ = recover() }()
	p.emit(p.record(site, args))
}

func (p *Probe) record(site string, args []any) *Record {
	rec := &Record{
		Site:  site,
		Args:  make([]string, len(args)),
		Stack: captureStack(p.maxFrames),
		Time:  p.now(),
	}
	for i, arg := range args {
		rec.Args[i] = Display(arg)
	}
	return rec
}

func (p *Probe) emit(rec *Record) {
	if p.sink == nil {
		return
	}
	p.sink.Emit(rec)
}

var active atomic.Pointer[Probe]

func init() {
	active.Store(New(Stderr()))
}

// Use replaces the probe used by Enter. It is called from the init function
// that the build tool generates when a sink other than stderr is configured.
func Use(sink Sink, opts ...Option) {
	active.Store(New(sink, opts...))
}

// Enter is the target of the entry stub woven into instrumented functions.
// A call that arrives while no probe is active is not recorded.
//
//go:linkname Enter
func Enter(site string, args ...any) {
	p := active.Load()
	if p == nil {
		return
	}
	p.Enter(site, args...)
}
