// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"

	"github.com/entryprobe/entryprobe/tool/ex"
)

const (
	EnvWorkDir    = "ENTRYPROBE_WORK_DIR"
	EnvBuildFlags = "ENTRYPROBE_BUILD_FLAGS"
	EnvTarget     = "ENTRYPROBE_TARGET"
	EnvConfig     = "ENTRYPROBE_CONFIG"
	EnvProbePath  = "ENTRYPROBE_PROBE_PATH"
	BuildTempDir  = ".entryprobe-build"
	ProbeRoot     = "github.com/entryprobe/entryprobe"
	ProbePkg      = ProbeRoot + "/pkg/probe"
)

// GetTransformerFile returns the file shared between the setup phase, which
// registers transformers, and the toolexec processes, which apply them.
func GetTransformerFile() string {
	const transformerFile = "transformers.json"
	return GetBuildTemp(transformerFile)
}

func GetWorkDir() string {
	wd := os.Getenv(EnvWorkDir)
	if wd == "" {
		wd, _ = os.Getwd()
		return wd
	}
	return wd
}

// GetBuildTempDir returns the path to the build temp directory $BUILD_TEMP
func GetBuildTempDir() string {
	return filepath.Join(GetWorkDir(), BuildTempDir)
}

// GetBuildTemp returns the path to the build temp directory $BUILD_TEMP/name
func GetBuildTemp(name string) string {
	return filepath.Join(GetWorkDir(), BuildTempDir, name)
}

func copyBackupFiles(names []string, src, dst string) error {
	var err error
	for _, name := range names {
		srcFile := filepath.Join(src, name)
		dstFile := filepath.Join(dst, name)
		err = errors.Join(err, CopyFile(srcFile, dstFile))
	}
	return err
}

// backupDirOf returns where the files of dir are backed up, one directory
// per absolute source directory.
func backupDirOf(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return GetBuildTemp(filepath.Join("backup", url.PathEscape(filepath.ToSlash(abs))))
}

// BackupFile backups the source file to $BUILD_TEMP/backup/<dir>/name.
func BackupFile(names []string) error {
	return BackupFilesIn(".", names)
}

// RestoreFile restores the source file from $BUILD_TEMP/backup/<dir>/name.
func RestoreFile(names []string) error {
	return RestoreFilesIn(".", names)
}

const absentSuffix = ".absent"

// BackupFilesIn backs up the named files of dir. A file that does not exist
// is recorded as absent, and RestoreFilesIn removes it again.
func BackupFilesIn(dir string, names []string) error {
	backupDir := backupDirOf(dir)
	present := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(backupDir, 0o755); err != nil {
				return ex.Wrap(err)
			}
			if err = os.WriteFile(filepath.Join(backupDir, name+absentSuffix), nil, 0o644); err != nil {
				return ex.Wrap(err)
			}
			continue
		}
		_ = os.Remove(filepath.Join(backupDir, name+absentSuffix))
		present = append(present, name)
	}
	return copyBackupFiles(present, dir, backupDir)
}

func RestoreFilesIn(dir string, names []string) error {
	backupDir := backupDirOf(dir)
	present := make([]string, 0, len(names))
	var err error
	for _, name := range names {
		if PathExists(filepath.Join(backupDir, name+absentSuffix)) {
			if rmErr := os.Remove(filepath.Join(dir, name)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, ex.Wrap(rmErr))
			}
			continue
		}
		present = append(present, name)
	}
	return errors.Join(err, copyBackupFiles(present, backupDir, dir))
}

// GetBuildFlags returns the build flags from ENTRYPROBE_BUILD_FLAGS. The
// flags are stored as a JSON-encoded string array to preserve arguments that
// contain spaces. Returns nil if not set or on decode error.
func GetBuildFlags() []string {
	encoded := os.Getenv(EnvBuildFlags)
	if encoded == "" {
		return nil
	}
	var flags []string
	if err := json.Unmarshal([]byte(encoded), &flags); err != nil {
		return nil
	}
	return flags
}

// EncodeBuildFlags encodes build flags as a JSON string for storage in an
// environment variable.
func EncodeBuildFlags(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	encoded, err := json.Marshal(flags)
	if err != nil {
		return ""
	}
	return string(encoded)
}
