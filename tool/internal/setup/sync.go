// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/util"
)

// probeVersion is required for the probe module, which is always replaced
// by a local directory.
const probeVersion = "v0.0.0"

func parseGoMod(gomod string) (*modfile.File, error) {
	data, err := os.ReadFile(gomod)
	if err != nil {
		return nil, ex.Wrapf(err, "failed to read go.mod file")
	}
	modFile, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return nil, ex.Wrapf(err, "failed to parse go.mod file")
	}
	return modFile, nil
}

func writeGoMod(gomod string, modFile *modfile.File) error {
	modFile.Cleanup()
	data, err := modFile.Format()
	if err != nil {
		return ex.Wrapf(err, "failed to format go.mod file")
	}
	err = os.WriteFile(gomod, data, 0o644) //nolint:gosec // 0644 is ok
	if err != nil {
		return ex.Wrapf(err, "failed to write go.mod file")
	}
	return nil
}

func runModTidy(ctx context.Context, moduleDir string) error {
	err := util.RunCmdInDir(ctx, moduleDir, "go", "mod", "tidy")
	if err != nil {
		return ex.Wrapf(err, "failed to run go mod tidy")
	}
	return nil
}

// addProbeRequire makes modFile depend on the probe module found at
// probeDir. It reports whether modFile changed.
func addProbeRequire(modFile *modfile.File, probeDir string) (bool, error) {
	changed := false
	required := false
	for _, r := range modFile.Require {
		if r.Mod.Path == util.ProbeRoot {
			required = true
			break
		}
	}
	if !required {
		if err := modFile.AddRequire(util.ProbeRoot, probeVersion); err != nil {
			return false, ex.Wrapf(err, "failed to add require directive")
		}
		changed = true
	}
	for _, r := range modFile.Replace {
		if r.Old.Path == util.ProbeRoot && r.New.Path == probeDir {
			return changed, nil
		}
	}
	if err := modFile.DropReplace(util.ProbeRoot, ""); err != nil {
		return false, ex.Wrapf(err, "failed to drop replace directive")
	}
	if err := modFile.AddReplace(util.ProbeRoot, "", probeDir, ""); err != nil {
		return false, ex.Wrapf(err, "failed to add replace directive")
	}
	return true, nil
}

// syncDeps points the module in moduleDir at the probe module. Sinks other
// than stderr bring third-party requirements, tidy resolves them.
func syncDeps(ctx context.Context, moduleDir, probeDir string, tidy bool) error {
	logger := util.LoggerFromContext(ctx)
	gomod := filepath.Join(moduleDir, "go.mod")
	modFile, err := parseGoMod(gomod)
	if err != nil {
		return err
	}
	if modFile.Module != nil && modFile.Module.Mod.Path == util.ProbeRoot {
		logger.DebugContext(ctx, "building the probe module itself, go.mod left as is")
		return nil
	}
	absProbeDir, err := filepath.Abs(probeDir)
	if err != nil {
		return ex.Wrap(err)
	}
	changed, err := addProbeRequire(modFile, absProbeDir)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err = writeGoMod(gomod, modFile); err != nil {
		return err
	}
	logger.InfoContext(ctx, "synced go.mod", "module", moduleDir, "probe", absProbeDir)
	if tidy {
		return runModTidy(ctx, moduleDir)
	}
	return nil
}
