// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/entryprobe/entryprobe/tool/ex"
)

func runCmd(ctx context.Context, dir string, env []string, args ...string) error {
	path := args[0]
	args = args[1:]
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if dir != "" {
		cmd.Dir = dir
	}
	if env != nil {
		cmd.Env = env
	}
	err := cmd.Run()
	if err != nil {
		if dir != "" {
			return ex.Wrapf(err, "failed to run command %s in %s", path, dir)
		}
		return ex.Wrapf(err, "failed to run command %s", path)
	}
	return nil
}

func RunCmd(ctx context.Context, args ...string) error {
	return runCmd(ctx, "", nil, args...)
}

func RunCmdWithEnv(ctx context.Context, env []string, args ...string) error {
	return runCmd(ctx, "", env, args...)
}

func RunCmdInDir(ctx context.Context, dir string, args ...string) error {
	return runCmd(ctx, dir, nil, args...)
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NormalizePath cleans the path and converts it to slash form so that paths
// from build plans can be used as map keys.
func NormalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

func CopyFile(src, dst string) error {
	err := os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return ex.Wrap(err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return ex.Wrap(err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return ex.Wrap(err)
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	if err != nil {
		return ex.Wrap(err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it over
// path.
func WriteFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return ex.Wrapf(err, "writing %s", tempPath)
	}
	if IsWindows() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			_ = os.Remove(tempPath)
			return ex.Wrapf(err, "removing %s", path)
		}
	}
	if err := os.Rename(tempPath, path); err != nil {
		return ex.Wrapf(err, "renaming %s", tempPath)
	}
	return nil
}
