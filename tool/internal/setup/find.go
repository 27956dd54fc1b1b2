// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

const maxBuildPlanBufferSize = 10 * 1024 * 1024 // 10MB

// Dependency is one package of the build plan.
type Dependency struct {
	ImportPath string
	Sources    []string
	Std        bool
}

func (d *Dependency) String() string {
	return fmt.Sprintf("{%s: %v}", d.ImportPath, d.Sources)
}

// Host is the toolchain as seen by the Installer: it knows which packages
// are about to be compiled and accepts transformers for them.
type Host interface {
	Packages(ctx context.Context) ([]*Dependency, error)
	Register(ctx context.Context, tr *rule.Transformer) error
}

// Toolchain is the Host backed by the go command. The build plan is listed
// once and shared by every Install made against it.
type Toolchain struct {
	args  []string
	store *Store

	mu   sync.Mutex
	deps []*Dependency
}

// NewToolchain returns the host for "go <args>", e.g. args of
// ["build", "-o", "app", "./cmd/app"].
func NewToolchain(args []string, store *Store) *Toolchain {
	return &Toolchain{args: args, store: store}
}

func (tc *Toolchain) Packages(ctx context.Context) ([]*Dependency, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.deps != nil {
		return tc.deps, nil
	}
	deps, err := findDeps(ctx, tc.args)
	if err != nil {
		return nil, err
	}
	tc.deps = deps
	return deps, nil
}

func (tc *Toolchain) Register(ctx context.Context, tr *rule.Transformer) error {
	return tc.store.Append(ctx, tr)
}

// parseCdDir extracts the directory path from a "cd" command line.
func parseCdDir(line string) (string, bool) {
	if len(line) < 3 || !strings.EqualFold(line[:3], "cd ") {
		return "", false
	}
	const cdCommandSplitLimit = 2 // Split "cd dir" into [dir, rest] to ignore trailing comments
	parts := strings.SplitN(line[3:], " ", cdCommandSplitLimit)
	return strings.TrimSpace(parts[0]), true
}

// findCommands scans the build plan log and keeps the cd and compile
// commands.
func findCommands(buildPlanLog *os.File) ([]string, error) {
	scanner, err := util.NewFileScanner(buildPlanLog, maxBuildPlanBufferSize)
	if err != nil {
		return nil, err
	}

	var commands []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if util.IsWindows() {
			line = strings.ReplaceAll(line, `\\`, `\`)
		}
		line = filepath.ToSlash(line)

		if _, ok := parseCdDir(line); ok || util.IsCompileCommand(line) {
			commands = append(commands, line)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, ex.Wrapf(err, "failed to parse build plan log")
	}
	return commands, nil
}

// listBuildPlan runs "go build -a -x -n ..." and returns the cd and compile
// commands of the plan. Nothing is compiled.
func listBuildPlan(ctx context.Context, goBuildCmd []string) ([]string, error) {
	const buildPlanLogName = "build-plan.log"
	if len(goBuildCmd) == 0 {
		return nil, ex.New("empty build command")
	}
	if goBuildCmd[0] != "build" && goBuildCmd[0] != "install" {
		return nil, ex.Newf("must be go build/install, got %s", goBuildCmd[0])
	}
	logger := util.LoggerFromContext(ctx)

	if err := os.MkdirAll(util.GetBuildTempDir(), 0o755); err != nil {
		return nil, ex.Wrap(err)
	}
	buildPlanLog, err := os.Create(util.GetBuildTemp(buildPlanLogName))
	if err != nil {
		return nil, ex.Wrapf(err, "failed to create build plan log file")
	}
	defer buildPlanLog.Close()

	args := []string{"go", goBuildCmd[0], "-a", "-x", "-n"}
	args = append(args, goBuildCmd[1:]...)
	logger.InfoContext(ctx, "listing build plan", "args", args)

	//nolint:gosec // the build command comes from our own command line
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	// The plan is printed to stderr, errors of the go command go to stdout.
	cmd.Stdout = os.Stdout
	cmd.Stderr = buildPlanLog
	if err = cmd.Run(); err != nil {
		logContent, _ := os.ReadFile(util.GetBuildTemp(buildPlanLogName))
		return nil, ex.Wrapf(err, "failed to run build plan: \n%s", string(logContent))
	}

	commands, err := findCommands(buildPlanLog)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "found build plan commands", "count", len(commands))
	return commands, nil
}

// findGoSources extracts the Go sources of a compile command. Relative
// sources are resolved against dir, the last "cd" of the plan. Sources
// generated under $WORK (cgo, embedcfg, coverage) do not exist on disk and
// are skipped.
func findGoSources(ctx context.Context, args []string, dir string) *Dependency {
	logger := util.LoggerFromContext(ctx)
	dep := &Dependency{
		ImportPath: util.FindFlagValue(args, "-p"),
		Sources:    make([]string, 0),
		Std:        util.HasFlag(args, "-std"),
	}
	util.Assert(dep.ImportPath != "", "import path is empty")

	for _, arg := range args {
		if !util.IsGoFile(arg) {
			continue
		}
		path := arg
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		if !util.PathExists(path) {
			logger.DebugContext(ctx, "skip generated file", "file", arg, "package", dep.ImportPath)
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		dep.Sources = append(dep.Sources, path)
	}
	return dep
}

// findDeps lists the packages of a build together with their sources.
func findDeps(ctx context.Context, goBuildCmd []string) ([]*Dependency, error) {
	buildPlan, err := listBuildPlan(ctx, goBuildCmd)
	if err != nil {
		return nil, err
	}
	return parseBuildPlan(ctx, buildPlan), nil
}

func parseBuildPlan(ctx context.Context, buildPlan []string) []*Dependency {
	var (
		deps       []*Dependency
		currentDir string
	)
	for _, cmd := range buildPlan {
		if dir, ok := parseCdDir(cmd); ok {
			currentDir = dir
			continue
		}
		deps = append(deps, findGoSources(ctx, util.SplitCompileCmds(cmd), currentDir))
	}
	return deps
}
