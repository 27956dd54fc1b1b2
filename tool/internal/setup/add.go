// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/entryprobe/entryprobe/tool/internal/ast"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

// RuntimeFile is added to every main package of an instrumented build so the
// probe package is linked and, for other sinks, configured before main runs.
const RuntimeFile = "entryprobe.runtime.go"

func runtimeSource(sink rule.SinkKind, sinkPath string) string {
	imp := sinkImport(sink)
	if imp == "" {
		return fmt.Sprintf("// Code generated by entryprobe. DO NOT EDIT.\n\npackage main\n\nimport _ %q\n",
			util.ProbePkg)
	}
	var ctor string
	switch sink {
	case rule.SinkOTLPJSON:
		ctor = "New(" + strconv.Quote(sinkPath) + ")"
	default:
		ctor = "New()"
	}
	return fmt.Sprintf(`// Code generated by entryprobe. DO NOT EDIT.

package main

import (
	_entryprobe %q
	_entryprobe_sink %q
)

func init() {
	_entryprobe.Use(_entryprobe_sink.%s)
}
`, util.ProbePkg, imp, ctor)
}

// addRuntimeFile writes RuntimeFile into pkgDir and returns its path.
func addRuntimeFile(pkgDir string, sink rule.SinkKind, sinkPath string) (string, error) {
	p := ast.NewAstParser()
	root, err := p.ParseSource(runtimeSource(sink, sinkPath))
	if err != nil {
		return "", err
	}
	target := filepath.Join(pkgDir, RuntimeFile)
	if err = ast.WriteFile(target, root); err != nil {
		return "", err
	}
	return target, nil
}

// chooseSink picks the sink of the build. The probe is process wide, so
// the first target asking for something other than stderr decides.
func chooseSink(targets []*rule.Target) (rule.SinkKind, string, []*rule.Target) {
	sink, sinkPath := rule.SinkStderr, ""
	var ignored []*rule.Target
	for _, t := range targets {
		if t.Sink == "" || t.Sink == rule.SinkStderr {
			continue
		}
		if sink == rule.SinkStderr {
			sink, sinkPath = t.Sink, t.SinkPath
			continue
		}
		if t.Sink != sink || t.SinkPath != sinkPath {
			ignored = append(ignored, t)
		}
	}
	return sink, sinkPath, ignored
}
