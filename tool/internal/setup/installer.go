// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

type State int32

const (
	Unattached State = iota
	Attaching
	Attached
	Failed
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	ErrTargetNotLoaded = errors.New("target package is not part of the build")
	ErrMethodNotFound  = errors.New("no function matches the target")
	ErrArgIndex        = errors.New("argument index out of range")
	ErrFailed          = errors.New("installer has failed")
)

// Installer attaches one probe. A failed installer stays failed, an attached
// one may be installed again, which registers a second transformer and so
// a second stub per matched function.
type Installer struct {
	mu     sync.Mutex
	state  atomic.Int32
	logger *slog.Logger
	sink   io.Writer
}

// NewInstaller returns an unattached installer. Failures are logged to
// logger and reported once to sink, which is normally os.Stderr.
func NewInstaller(logger *slog.Logger, sink io.Writer) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = io.Discard
	}
	return &Installer{logger: logger, sink: sink}
}

func (in *Installer) State() State {
	return State(in.state.Load())
}

func (in *Installer) setState(s State) {
	in.state.Store(int32(s))
}

// Install resolves target against the packages of host and registers the
// resulting transformer. Any error moves the installer to Failed; the
// build itself is never affected.
func (in *Installer) Install(ctx context.Context, target *rule.Target, host Host) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.State() == Failed {
		return ErrFailed
	}
	in.setState(Attaching)

	tr, err := in.resolve(ctx, target, host)
	if err == nil {
		if err = host.Register(ctx, tr); err != nil {
			err = ex.Wrapf(err, "registering %s", target)
		}
	}
	if err != nil {
		in.fail(ctx, target, err)
		return err
	}
	in.setState(Attached)
	in.logger.InfoContext(ctx, "probe attached",
		"target", target.String(), "config", target.Config(), "package", tr.Package, "funcs", tr.Funcs)
	return nil
}

func (in *Installer) fail(ctx context.Context, target *rule.Target, err error) {
	in.setState(Failed)
	in.logger.ErrorContext(ctx, "probe not attached", "target", target.String(), "error", err)
	// Only the first line; the rest of the chain went to the log.
	reason, _, _ := strings.Cut(err.Error(), "\n")
	_, _ = fmt.Fprintf(in.sink, "[entryprobe] instrumentation disabled for %s: %s\n", target, reason)
}

func (in *Installer) resolve(ctx context.Context, target *rule.Target, host Host) (*rule.Transformer, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if target.Package == util.ProbeRoot || strings.HasPrefix(target.Package, util.ProbeRoot+"/") {
		return nil, ex.Wrapf(rule.ErrInvalidTarget, "%s belongs to entryprobe itself", target.Package)
	}
	matcher, err := rule.NewMatcher(target)
	if err != nil {
		return nil, err
	}

	deps, err := host.Packages(ctx)
	if err != nil {
		return nil, ex.Wrapf(err, "listing packages")
	}
	// Every main package of a multi-binary build is named "main"; each one
	// is scanned and its sources recorded by path.
	var found []matchedFunc
	loaded := false
	for _, dep := range deps {
		if dep.ImportPath != target.Package {
			continue
		}
		if dep.Std {
			// The probe itself calls into the standard library.
			return nil, ex.Wrapf(rule.ErrInvalidTarget, "%s is a standard library package", dep.ImportPath)
		}
		loaded = true
		fns, err := scanDependency(ctx, dep, matcher)
		if err != nil {
			return nil, err
		}
		found = append(found, fns...)
	}
	if !loaded {
		return nil, ex.Wrapf(ErrTargetNotLoaded, "package %s", target.Package)
	}
	if len(found) == 0 {
		return nil, ex.Wrapf(ErrMethodNotFound, "%s in package %s", target, target.Package)
	}
	maxArg := target.MaxArg()
	for _, fn := range found {
		if maxArg >= fn.Params {
			return nil, ex.Wrapf(ErrArgIndex, "index %d, %s has %d parameters (%s:%d)",
				maxArg, fn.Name, fn.Params, fn.Source, fn.Line)
		}
	}
	return newTransformer(target, target.Package, found), nil
}
