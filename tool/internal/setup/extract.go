// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/entryprobe/entryprobe/pkg"
	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

const (
	probeDirName  = "probe-module"
	probeGoString = "1.21"
)

// sinkRequires lists the modules imported by the sink packages. Versions
// follow the go.mod of this repository.
//
//nolint:gochecknoglobals // private lookup table
var sinkRequires = map[rule.SinkKind][]module.Version{
	rule.SinkOtel: {
		{Path: "go.opentelemetry.io/otel", Version: "v1.39.0"},
		{Path: "go.opentelemetry.io/otel/trace", Version: "v1.39.0"},
	},
	rule.SinkOTLPJSON: {
		{Path: "go.opentelemetry.io/collector/pdata", Version: "v1.48.0"},
	},
}

// extractProbe writes the embedded probe packages into dir as a module
// named util.ProbeRoot and returns dir. Only the requirements of sink are
// added, so a stderr build pulls in nothing but the standard library.
func extractProbe(dir string, sink rule.SinkKind) (string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return "", ex.Wrapf(err, "failed to clean %s", dir)
	}
	err := fs.WalkDir(pkg.Sources, pkg.Root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(name, "_test.go") || !util.IsGoFile(name) {
			return nil
		}
		data, err := fs.ReadFile(pkg.Sources, name)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, "pkg", filepath.FromSlash(name))
		if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		return "", ex.Wrapf(err, "failed to extract probe sources")
	}

	gomod, err := probeGoMod(sink)
	if err != nil {
		return "", err
	}
	if err = os.WriteFile(filepath.Join(dir, "go.mod"), gomod, 0o644); err != nil {
		return "", ex.Wrapf(err, "failed to write probe go.mod")
	}
	return dir, nil
}

func probeGoMod(sink rule.SinkKind) ([]byte, error) {
	f := new(modfile.File)
	if err := f.AddModuleStmt(util.ProbeRoot); err != nil {
		return nil, ex.Wrap(err)
	}
	if err := f.AddGoStmt(probeGoString); err != nil {
		return nil, ex.Wrap(err)
	}
	for _, req := range sinkRequires[sink] {
		if err := f.AddRequire(req.Path, req.Version); err != nil {
			return nil, ex.Wrapf(err, "failed to require %s", req)
		}
	}
	data, err := f.Format()
	if err != nil {
		return nil, ex.Wrapf(err, "failed to format probe go.mod")
	}
	return data, nil
}

// sinkImport returns the import path of the sink package, empty for the
// default stderr sink that lives in the probe package itself.
func sinkImport(sink rule.SinkKind) string {
	switch sink {
	case rule.SinkOtel:
		return path.Join(util.ProbePkg, "otelsink")
	case rule.SinkOTLPJSON:
		return path.Join(util.ProbePkg, "otlpsink")
	default:
		return ""
	}
}
