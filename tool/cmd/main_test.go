// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/internal/setup"
	"github.com/entryprobe/entryprobe/tool/util"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run(t.Context(), []string{"entryprobe", "version", "--verbose"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "entryprobe version "+Version, lines[0])
	assert.Equal(t, runtime.Version(), lines[1])
}

// runLoadConfig parses args with the root flags and returns what
// loadConfig makes of them.
func runLoadConfig(t *testing.T, args ...string) (*setup.Config, []error) {
	t.Helper()
	var (
		cfg  *setup.Config
		errs []error
	)
	app := newApp()
	app.Commands = nil
	app.Action = func(_ context.Context, cmd *cli.Command) error {
		cfg, errs = loadConfig(cmd)
		return nil
	}
	require.NoError(t, app.Run(t.Context(), append([]string{"entryprobe"}, args...)))
	return cfg, errs
}

func TestLoadConfig_Targets(t *testing.T) {
	cfg, errs := runLoadConfig(t,
		"--target", "typeName=example.com/a/b.C,methodName=m,argIndex=1;typeName=example.com/x,methodName=f",
		"--target", "typeName=example.com/a/b.C,methodName=n",
		"--probe-path", "/src/entryprobe",
	)
	require.Empty(t, errs)
	require.Len(t, cfg.Targets, 3)
	assert.Equal(t, "example.com/a/b", cfg.Targets[0].Package)
	assert.Equal(t, []int{1}, cfg.Targets[0].Args)
	assert.Equal(t, "f", cfg.Targets[1].Method)
	assert.Equal(t, "n", cfg.Targets[2].Method)
	assert.Equal(t, "/src/entryprobe", cfg.ProbePath)
}

func TestLoadConfig_FromEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
greet:
  type: example.com/app/greeter.Greeter
  method: Hello
`), 0o644))
	t.Setenv(util.EnvTarget, "typeName=example.com/a/b.C,methodName=m")
	t.Setenv(util.EnvConfig, path)

	cfg, errs := runLoadConfig(t)
	require.Empty(t, errs)
	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "m", cfg.Targets[0].Method)
	assert.Equal(t, "greet", cfg.Targets[1].Name)
}

func TestLoadConfig_BadTargetIsLeftOut(t *testing.T) {
	cfg, errs := runLoadConfig(t,
		"--target", "typeName=example.com/a/b.C,methodName=m,color=red",
		"--target", "typeName=example.com/a/b.C,methodName=m",
	)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], rule.ErrInvalidTarget)
	assert.Len(t, cfg.Targets, 1)
}

func TestLoadConfig_EnvTargetKeepsCommas(t *testing.T) {
	t.Setenv(util.EnvTarget, "typeName=example.com/a/b.C,methodName=m,argIndex=0,argIndex=2;typeName=example.com/x,methodName=f,argIndex=none")

	cfg, errs := runLoadConfig(t)
	require.Empty(t, errs)
	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, []int{0, 2}, cfg.Targets[0].Args)
	assert.Equal(t, "f", cfg.Targets[1].Method)
	assert.Empty(t, cfg.Targets[1].Args)
}

func TestLoadConfig_FlagWinsOverEnv(t *testing.T) {
	t.Setenv(util.EnvTarget, "typeName=example.com/a/b.C,methodName=m")

	cfg, errs := runLoadConfig(t, "--target", "typeName=example.com/a/b.C,methodName=n")
	require.Empty(t, errs)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "n", cfg.Targets[0].Method)
}

func TestLoadConfig_ConfigMustBeYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	cfg, errs := runLoadConfig(t, "--config", path)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], rule.ErrInvalidTarget)
	assert.Contains(t, errs[0].Error(), "not a .yaml or .yml file")
	assert.Empty(t, cfg.Targets)
}

func TestIsBuildCommand(t *testing.T) {
	assert.True(t, isBuildCommand([]string{"build", "./..."}))
	assert.True(t, isBuildCommand([]string{"install"}))
	assert.False(t, isBuildCommand([]string{"vet"}))
	assert.False(t, isBuildCommand(nil))
}

func TestExitWithGoStatus(t *testing.T) {
	require.NoError(t, exitWithGoStatus(nil))

	var coder cli.ExitCoder
	err := exitWithGoStatus(os.ErrNotExist)
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, exitCodeFailure, coder.ExitCode())

	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	err = exitWithGoStatus(exec.Command("sh", "-c", "exit 3").Run())
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, 3, coder.ExitCode())
}

func TestInvokedByToolchain(t *testing.T) {
	t.Setenv("TOOLEXEC_IMPORTPATH", "")
	require.NoError(t, os.Unsetenv("TOOLEXEC_IMPORTPATH"))

	assert.False(t, invokedByToolchain([]string{"/go/pkg/tool/compile", "-o", "_pkg_.a"}))
	assert.False(t, invokedByToolchain(nil))
	// the go command asks every tool for its version without an import path
	assert.True(t, invokedByToolchain([]string{"/go/pkg/tool/compile", "-V=full"}))

	t.Setenv("TOOLEXEC_IMPORTPATH", "example.com/app")
	assert.True(t, invokedByToolchain([]string{"/go/pkg/tool/compile", "-o", "_pkg_.a"}))
}

// runToolexec runs the toolexec command the way the go command does.
func runToolexec(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv(util.EnvWorkDir, t.TempDir())
	app := newApp()
	app.Writer = io.Discard
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	return app.Run(t.Context(), append([]string{"entryprobe", "toolexec"}, args...))
}

func goTool(t *testing.T, name string) string {
	t.Helper()
	out, err := exec.Command("go", "env", "GOTOOLDIR").Output()
	require.NoError(t, err)
	return filepath.Join(strings.TrimSpace(string(out)), name)
}

func TestToolexec_VersionQuery(t *testing.T) {
	t.Setenv("TOOLEXEC_IMPORTPATH", "")
	require.NoError(t, os.Unsetenv("TOOLEXEC_IMPORTPATH"))

	require.NoError(t, runToolexec(t, goTool(t, "compile"), "-V=full"))
}

func TestToolexec_PackageAction(t *testing.T) {
	t.Setenv("TOOLEXEC_IMPORTPATH", "example.com/app")

	require.NoError(t, runToolexec(t, "go", "env", "GOOS"))
}

func TestToolexec_RejectsManualCall(t *testing.T) {
	t.Setenv("TOOLEXEC_IMPORTPATH", "")
	require.NoError(t, os.Unsetenv("TOOLEXEC_IMPORTPATH"))

	err := runToolexec(t, goTool(t, "compile"), "-o", "_pkg_.a")
	var coder cli.ExitCoder
	require.ErrorAs(t, err, &coder)
	assert.Equal(t, exitCodeUsageError, coder.ExitCode())
}
