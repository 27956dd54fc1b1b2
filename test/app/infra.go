// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entryprobe/entryprobe/tool/util"
)

const (
	toolBinName = "entryprobe"
	appBinName  = "app"
)

func exeName(name string) string {
	if util.IsWindows() {
		return name + ".exe"
	}
	return name
}

func newCmd(ctx context.Context, dir string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return cmd
}

// cleanBuild removes what a build left in appDir.
func cleanBuild(t *testing.T, appDir string) {
	t.Cleanup(func() {
		_ = os.Remove(filepath.Join(appDir, exeName(appBinName)))
		_ = os.RemoveAll(filepath.Join(appDir, util.BuildTempDir))
	})
}

//nolint:gochecknoglobals // the tool is built once per test binary
var (
	toolOnce sync.Once
	toolPath string
	toolErr  error
	toolOut  []byte
)

// Tool builds the entryprobe binary from the repository root once and
// returns its path.
func Tool(t *testing.T) string {
	t.Helper()
	toolOnce.Do(func() {
		dir, err := os.MkdirTemp("", "entryprobe-tool")
		if err != nil {
			toolErr = err
			return
		}
		toolPath = filepath.Join(dir, exeName(toolBinName))
		root, err := filepath.Abs(filepath.Join("..", ".."))
		if err != nil {
			toolErr = err
			return
		}
		cmd := newCmd(context.Background(), root, "go", "build", "-o", toolPath, "./tool/cmd")
		toolOut, toolErr = cmd.CombinedOutput()
	})
	require.NoError(t, toolErr, string(toolOut))
	return toolPath
}

// Build runs "entryprobe <flags> go build -o app" in appDir with env added
// to the environment and returns the combined output of the tool. The build
// itself must succeed.
func Build(t *testing.T, appDir string, env []string, flags ...string) string {
	t.Helper()
	args := append([]string{Tool(t)}, flags...)
	args = append(args, "go", "build", "-o", exeName(appBinName), ".")

	cmd := newCmd(t.Context(), appDir, args...)
	cmd.Env = append(cmd.Env, env...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	cleanBuild(t, appDir)
	return string(out)
}

// BuildPlain runs "go build -o app" in appDir without the tool.
func BuildPlain(t *testing.T, appDir string) {
	t.Helper()
	cmd := newCmd(t.Context(), appDir, "go", "build", "-o", exeName(appBinName), ".")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	cleanBuild(t, appDir)
}

// RefuseToolexec returns environment entries that put a go wrapper first
// in PATH. The wrapper fails every build given -toolexec and runs the real
// go command otherwise.
func RefuseToolexec(t *testing.T) []string {
	t.Helper()
	if util.IsWindows() {
		t.Skip("the go wrapper is a shell script")
	}
	goCmd, err := exec.LookPath("go")
	require.NoError(t, err)
	dir := t.TempDir()
	script := `#!/bin/sh
for arg in "$@"; do
	case "$arg" in
	-toolexec=*) echo "toolexec refused" >&2; exit 1 ;;
	esac
done
exec "` + goCmd + `" "$@"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go"), []byte(script), 0o755))
	return []string{"PATH=" + dir + string(os.PathListSeparator) + os.Getenv("PATH")}
}

// Run runs the application built by Build and returns its stdout and
// stderr separately.
func Run(t *testing.T, dir string, args ...string) (string, string) {
	t.Helper()
	cmd := newCmd(t.Context(), dir, append([]string{"./" + exeName(appBinName)}, args...)...)
	var stdout, stderr safeBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), stderr.String())
	return stdout.String(), stderr.String()
}
