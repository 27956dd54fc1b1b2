// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/ast"
	"github.com/entryprobe/entryprobe/tool/internal/imports"
	"github.com/entryprobe/entryprobe/tool/internal/pkgload"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

type InstrumentPhase struct {
	logger *slog.Logger
	// The context for this phase
	ctx context.Context
	// The compiling arguments, rewritten in place of the original sources
	compileArgs []string
	// The import path of the package being compiled
	pkgPath string
	// The directory of the compilation output, where rewritten files go
	objDir string
}

func (ip *InstrumentPhase) Info(msg string, args ...any)  { ip.logger.Info(msg, args...) }
func (ip *InstrumentPhase) Error(msg string, args ...any) { ip.logger.Error(msg, args...) }
func (ip *InstrumentPhase) Warn(msg string, args ...any)  { ip.logger.Warn(msg, args...) }
func (ip *InstrumentPhase) Debug(msg string, args ...any) { ip.logger.Debug(msg, args...) }

// keepForDebug keeps the file in the .entryprobe-build directory for debugging
func (ip *InstrumentPhase) keepForDebug(name string) {
	escape := func(s string) string {
		dirName := strings.ReplaceAll(s, "/", "_")
		dirName = strings.ReplaceAll(dirName, ".", "_")
		return dirName
	}
	dest := filepath.Join("debug", escape(ip.pkgPath), filepath.Base(name))
	err := util.CopyFile(name, util.GetBuildTemp(dest))
	if err != nil { // error is tolerable here as this is only for debugging
		ip.Warn("failed to save modified file", "dest", dest, "error", err)
	}
}

// loadTransformers reads what the setup phase registered. A missing file
// means nothing was installed.
func loadTransformers() ([]*rule.Transformer, error) {
	f := util.GetTransformerFile()
	data, err := os.ReadFile(f)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, ex.Wrapf(err, "failed to read transformers %s", f)
	}
	var trs []*rule.Transformer
	if err = json.Unmarshal(data, &trs); err != nil {
		return nil, ex.Wrapf(err, "failed to decode transformers %s", f)
	}
	return trs, nil
}

func (ip *InstrumentPhase) match(trs []*rule.Transformer) []*rule.Transformer {
	matched := make([]*rule.Transformer, 0)
	for _, tr := range trs {
		if tr.Package == ip.pkgPath {
			matched = append(matched, tr)
		}
	}
	return matched
}

// sourceSet keys the sources of trs by normalized absolute path. Several
// packages may share an import path, e.g. the main packages of a multi
// binary build, so base names alone are ambiguous.
func sourceSet(trs []*rule.Transformer) map[string]bool {
	set := make(map[string]bool)
	for _, tr := range trs {
		for _, src := range tr.Sources {
			set[absSource(src)] = true
		}
	}
	return set
}

func absSource(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return util.NormalizePath(path)
}

// instrument rewrites the sources of the package and returns the new
// compile arguments.
func (ip *InstrumentPhase) instrument(trs []*rule.Transformer) ([]string, error) {
	candidates := sourceSet(trs)
	args := make([]string, len(ip.compileArgs))
	copy(args, ip.compileArgs)

	pkgName := ""
	woven := 0
	for i, arg := range args {
		if !util.IsGoFile(arg) || !candidates[absSource(arg)] {
			continue
		}
		source, err := filepath.Abs(arg)
		if err != nil {
			return nil, ex.Wrap(err)
		}
		p := ast.NewAstParser()
		root, err := p.Parse(source, parser.ParseComments)
		if err != nil {
			return nil, err
		}
		n, err := WeaveFile(p, root, ip.pkgPath, trs)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		out := filepath.Join(ip.objDir, wovenPrefix+filepath.Base(arg))
		if err = ast.WriteFile(out, root); err != nil {
			return nil, err
		}
		ip.keepForDebug(out)
		ip.Info("Woven source", "source", arg, "output", out, "functions", n)
		args[i] = out
		pkgName = root.Name.Name
		woven += n
	}
	if woven == 0 {
		ip.Debug("No function woven", "package", ip.pkgPath)
		return ip.compileArgs, nil
	}

	linkname, err := writeLinknameFile(ip.objDir, pkgName)
	if err != nil {
		return nil, err
	}
	ip.keepForDebug(linkname)
	args = append(args, linkname)
	// The linkname declaration has no body
	return stripCompleteFlag(args), nil
}

func stripCompleteFlag(args []string) []string {
	return util.StripFlag(args, "-complete")
}

// interceptCompile weaves the entry stubs into the package being compiled.
// It never fails the compilation: if weaving goes wrong the package is
// compiled from its original sources.
func interceptCompile(ctx context.Context, args []string) []string {
	target := util.FindFlagValue(args, "-o")
	util.Assert(target != "", "missing -o flag value")

	ip := &InstrumentPhase{
		logger:      util.LoggerFromContext(ctx),
		ctx:         ctx,
		compileArgs: args,
		pkgPath:     util.FindFlagValue(args, "-p"),
		objDir:      filepath.Dir(target),
	}

	trs, err := loadTransformers()
	if err != nil {
		ip.Error("failed to load transformers", "error", err)
		return args
	}
	matched := ip.match(trs)
	if len(matched) == 0 {
		return args
	}

	ip.Info("Instrument package", "package", ip.pkgPath, "transformers", matched)
	newArgs, err := ip.instrument(matched)
	if err != nil {
		ip.Error("instrumentation disabled for package", "package", ip.pkgPath, "error", err)
		fmt.Fprintf(os.Stderr, "[entryprobe] instrumentation disabled for %s: %v\n", ip.pkgPath, err)
		return args
	}
	ip.Info("Run instrumented command", "args", newArgs)
	return newArgs
}

// interceptLink makes sure the probe package and its dependencies are in
// the link importcfg. The generated runtime file imports the probe package
// from every main package, so this only matters for mains it did not reach.
func interceptLink(ctx context.Context, args []string) ([]string, error) {
	logger := util.LoggerFromContext(ctx)

	importCfgPath := util.FindFlagValue(args, "-importcfg")
	if importCfgPath == "" {
		return args, nil
	}
	trs, err := loadTransformers()
	if err != nil || len(trs) == 0 {
		return args, nil //nolint:nilerr // nothing was woven
	}

	linkConfig, err := imports.ParseImportCfg(importCfgPath)
	if err != nil {
		return nil, err
	}
	if _, ok := linkConfig.PackageFile[util.ProbePkg]; ok {
		return args, nil
	}

	archives, err := pkgload.ResolveExportFiles(ctx, util.ProbePkg, util.GetBuildFlags()...)
	if err != nil {
		return nil, ex.Wrapf(err, "resolving %s for link", util.ProbePkg)
	}
	added := linkConfig.AddMissing(archives)
	if err = linkConfig.WriteFile(importCfgPath); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Updated link importcfg", "path", importCfgPath, "added", added)
	return args, nil
}

// Toolexec is the entry point of the toolexec command. It intercepts all the
// commands (compile, link, asm, etc.) during the build. Compile commands of
// packages with registered transformers are run on woven sources, and link
// commands are given the probe package.
func Toolexec(ctx context.Context, args []string) error {
	if util.IsCompileArgs(args) {
		args = interceptCompile(ctx, args)
	}

	if util.IsLinkArgs(args) {
		var err error
		args, err = interceptLink(ctx, args)
		if err != nil {
			return err
		}
	}

	return util.RunCmd(ctx, args...)
}
