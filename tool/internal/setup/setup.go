// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/pkgload"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

// MinGoVersion is the oldest toolchain whose build plan and compile flags
// are understood.
const MinGoVersion = "1.21"

// Config is what the command line asks for.
type Config struct {
	Targets []*rule.Target
	// ProbePath is a local checkout of the probe module used instead of the
	// embedded copy.
	ProbePath string
}

// Result records what Setup changed, so the caller can undo it.
type Result struct {
	Attached     []*rule.Target
	RuntimeFiles []string
	ModuleDirs   []string
	ProbeDir     string
}

//nolint:gochecknoglobals // private lookup table
var modBackupFiles = []string{"go.mod", "go.sum"}

// flagsWithPathValues contains flags that accept a value from "go build" command.
//
//nolint:gochecknoglobals // private lookup table
var flagsWithPathValues = map[string]bool{
	"-C":             true,
	"-o":             true,
	"-p":             true,
	"-covermode":     true,
	"-coverpkg":      true,
	"-asmflags":      true,
	"-buildmode":     true,
	"-buildvcs":      true,
	"-compiler":      true,
	"-gccgoflags":    true,
	"-gcflags":       true,
	"-installsuffix": true,
	"-ldflags":       true,
	"-mod":           true,
	"-modfile":       true,
	"-overlay":       true,
	"-pgo":           true,
	"-pkgdir":        true,
	"-tags":          true,
	"-toolexec":      true,
}

// buildPatterns returns the package patterns of a go build command line,
// "." when there are none. For example:
//   - ["build", "-o", "./tmp", "./app"] returns ["./app"]
//   - ["build", ".", "./cmd"] returns [".", "./cmd"]
//   - ["build"] returns ["."]
func buildPatterns(args []string) []string {
	var patterns []string
	for i := len(args) - 1; i >= 0; i-- {
		arg := args[i]
		// go build [-o output] [build flags] [packages]
		if i > 0 && flagsWithPathValues[args[i-1]] {
			break
		}
		if strings.HasPrefix(arg, "-") || arg == "go" || arg == "build" || arg == "install" {
			break
		}
		patterns = append(patterns, arg)
	}
	if len(patterns) == 0 {
		return []string{"."}
	}
	slices.Reverse(patterns)
	return patterns
}

// Setup installs every target of cfg against the build "go <args>". When at
// least one probe is attached the main packages get the runtime file and
// their modules are pointed at the probe module. Install failures are
// reported by their Installer and do not make Setup fail.
func Setup(ctx context.Context, args []string, cfg *Config) (*Result, error) {
	logger := util.LoggerFromContext(ctx)
	res := &Result{}

	if err := os.MkdirAll(util.GetBuildTempDir(), 0o755); err != nil {
		return res, ex.Wrapf(err, "failed to create build temp dir")
	}
	store := NewStore(util.GetTransformerFile())
	if err := store.Reset(); err != nil {
		return res, err
	}
	host := NewToolchain(args, store)
	for _, target := range cfg.Targets {
		in := NewInstaller(logger, os.Stderr)
		if err := in.Install(ctx, target, host); err != nil {
			continue
		}
		res.Attached = append(res.Attached, target)
	}
	if len(res.Attached) == 0 {
		logger.InfoContext(ctx, "no probe attached")
		return res, nil
	}

	sink, sinkPath, ignored := chooseSink(res.Attached)
	for _, t := range ignored {
		logger.WarnContext(ctx, "sink ignored, one sink per build", "target", t.String(),
			"sink", t.Sink, "using", sink)
	}

	mains, err := pkgload.MainPackages(ctx, extractBuildFlags(args), buildPatterns(args)...)
	if err != nil {
		return res, err
	}
	if len(mains) == 0 {
		return res, ex.Newf("no main package in %v", buildPatterns(args))
	}

	probeDir := cfg.ProbePath
	if probeDir == "" {
		probeDir, err = extractProbe(util.GetBuildTemp(probeDirName), sink)
		if err != nil {
			return res, err
		}
		res.ProbeDir = probeDir
	}

	for _, pkg := range mains {
		if len(pkg.GoFiles) == 0 {
			logger.WarnContext(ctx, "skipping main package without files", "package", pkg.PkgPath)
			continue
		}
		runtimeFile, err1 := addRuntimeFile(filepath.Dir(pkg.GoFiles[0]), sink, sinkPath)
		if err1 != nil {
			return res, err1
		}
		res.RuntimeFiles = append(res.RuntimeFiles, runtimeFile)
		keepForDebug(ctx, runtimeFile, pkg.PkgPath)
		if !slices.Contains(res.ModuleDirs, pkg.Module.Dir) {
			res.ModuleDirs = append(res.ModuleDirs, pkg.Module.Dir)
		}
	}

	for _, moduleDir := range res.ModuleDirs {
		if err = util.BackupFilesIn(moduleDir, modBackupFiles); err != nil {
			logger.DebugContext(ctx, "failed to back up go.mod", "dir", moduleDir, "error", err)
		}
		if err = syncDeps(ctx, moduleDir, probeDir, sink != rule.SinkStderr); err != nil {
			return res, err
		}
	}
	logger.InfoContext(ctx, "setup completed", "attached", len(res.Attached), "sink", sink)
	return res, nil
}

// keepForDebug copies the file to the build temp directory for debugging.
// Error is tolerated as it's not critical.
func keepForDebug(ctx context.Context, srcPath, pkgPath string) {
	dstPath := filepath.Join(util.GetBuildTemp("debug"), strings.ReplaceAll(pkgPath, "/", "_"),
		filepath.Base(srcPath))
	if err := util.CopyFile(srcPath, dstPath); err != nil {
		util.LoggerFromContext(ctx).WarnContext(ctx, "failed to record added file",
			"path", srcPath, "error", err)
	}
}

// Undo removes what Setup added to the user's tree.
func (r *Result) Undo(ctx context.Context) {
	logger := util.LoggerFromContext(ctx)
	for _, f := range r.RuntimeFiles {
		if err := os.RemoveAll(f); err != nil {
			logger.DebugContext(ctx, "failed to remove runtime file", "file", f, "error", err)
		}
	}
	for _, dir := range r.ModuleDirs {
		if err := util.RestoreFilesIn(dir, modBackupFiles); err != nil {
			logger.DebugContext(ctx, "failed to restore go.mod", "dir", dir, "error", err)
		}
	}
	if r.ProbeDir != "" {
		if err := os.RemoveAll(r.ProbeDir); err != nil {
			logger.DebugContext(ctx, "failed to remove probe module", "error", err)
		}
	}
}

// setupGoCache creates a persistent GOCACHE in .entryprobe-build/gocache if
// one isn't already set, so woven archives never end up in the user's cache.
func setupGoCache(ctx context.Context, env []string) ([]string, error) {
	if os.Getenv("GOCACHE") != "" {
		return env, nil
	}

	logger := util.LoggerFromContext(ctx)
	cacheDir := util.GetBuildTemp("gocache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, ex.Wrapf(err, "failed to create persistent GOCACHE")
	}

	env = append(env, "GOCACHE="+cacheDir)
	logger.DebugContext(ctx, "using GOCACHE", "path", cacheDir)
	return env, nil
}

// buildContextFlagsWithValue are go build flags that take a value and affect the build context.
//
//nolint:gochecknoglobals // private lookup table
var buildContextFlagsWithValue = map[string]bool{
	"-tags":    true,
	"-mod":     true,
	"-modfile": true,
}

// buildContextBoolFlags are go build boolean flags that affect the build context.
//
//nolint:gochecknoglobals // private lookup table
var buildContextBoolFlags = map[string]bool{
	"-race":  true,
	"-msan":  true,
	"-cover": true,
	"-asan":  true,
}

// extractBuildFlags extracts flags that affect the build context from the
// arguments. They are forwarded to `go list` when main packages and import
// archives are resolved. For boolean flags the last occurrence wins, so
// "-race -race=false" yields "-race=false". Value flags come first, then
// the boolean flags sorted by name.
func extractBuildFlags(args []string) []string {
	var valueFlags []string
	boolFlagState := make(map[string]bool)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if idx := strings.Index(arg, "="); idx > 0 {
			flagName := arg[:idx]
			flagValue := arg[idx+1:]

			if buildContextFlagsWithValue[flagName] {
				valueFlags = append(valueFlags, arg)
				continue
			}
			if buildContextBoolFlags[flagName] {
				// Invalid values are ignored, as go build would reject them.
				if enabled, err := strconv.ParseBool(flagValue); err == nil {
					boolFlagState[flagName] = enabled
				}
			}
			continue
		}

		if buildContextBoolFlags[arg] {
			boolFlagState[arg] = true
			continue
		}

		if buildContextFlagsWithValue[arg] && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			valueFlags = append(valueFlags, arg, args[i+1])
			i++
		}
	}

	var boolFlags []string
	for flag, enabled := range boolFlagState {
		if enabled {
			boolFlags = append(boolFlags, flag)
		} else {
			boolFlags = append(boolFlags, flag+"=false")
		}
	}
	sort.Strings(boolFlags)

	return append(valueFlags, boolFlags...)
}

// quoteField quotes s the way the go command splits -toolexec, so that an
// executable path with blanks stays one field.
func quoteField(s string) string {
	if !strings.ContainsAny(s, " \t\n\r'\"") {
		return s
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}

// executable locates the binary the go command runs as -toolexec.
//
//nolint:gochecknoglobals // replaced in tests
var executable = os.Executable

// BuildWithToolexec builds the project with the toolexec mode
func BuildWithToolexec(ctx context.Context, args []string) error {
	logger := util.LoggerFromContext(ctx)

	execPath, err := executable()
	if err != nil {
		return ex.Wrapf(err, "failed to get executable path")
	}
	insert := "-toolexec=" + quoteField(execPath) + " toolexec"
	const additionalCount = 4
	newArgs := make([]string, 0, len(args)+additionalCount) // Avoid in-place modification
	newArgs = append(newArgs, "go")
	newArgs = append(newArgs, args[:1]...)
	// Keep $WORK so woven sources can be inspected
	newArgs = append(newArgs, "-work")
	newArgs = append(newArgs, insert)
	// Every package must pass through toolexec, cached archives would not
	newArgs = append(newArgs, "-a")
	newArgs = append(newArgs, args[1:]...)
	logger.InfoContext(ctx, "running go build with toolexec", "args", newArgs)

	env := os.Environ()
	pwd := util.GetWorkDir()
	util.Assert(pwd != "", "invalid working directory")
	env = append(env, fmt.Sprintf("%s=%s", util.EnvWorkDir, pwd))

	if buildFlags := extractBuildFlags(args); len(buildFlags) > 0 {
		encoded := util.EncodeBuildFlags(buildFlags)
		env = append(env, fmt.Sprintf("%s=%s", util.EnvBuildFlags, encoded))
		logger.DebugContext(ctx, "forwarding build flags", "flags", buildFlags)
	}

	env, err = setupGoCache(ctx, env)
	if err != nil {
		return err
	}

	return util.RunCmdWithEnv(ctx, env, newArgs...)
}

// GoBuild runs "go <args>" with every attached probe woven in. Whatever
// fails on the way, the build still runs, then without probes.
func GoBuild(ctx context.Context, args []string, cfg *Config) error {
	logger := util.LoggerFromContext(ctx)
	plain := append([]string{"go"}, args...)

	if err := CheckToolchain(ctx); err != nil {
		ReportDisabled(ctx, err)
		return util.RunCmd(ctx, plain...)
	}

	backupFiles := []string{"go.mod", "go.sum", "go.work", "go.work.sum"}
	_ = os.RemoveAll(util.GetBuildTemp("backup"))
	if err := util.BackupFile(backupFiles); err != nil {
		logger.DebugContext(ctx, "failed to back up files", "error", err)
	}
	restore := func(res *Result) {
		if res != nil {
			res.Undo(ctx)
		}
		if err := util.RestoreFile(backupFiles); err != nil {
			logger.DebugContext(ctx, "failed to restore files", "error", err)
		}
	}

	res, err := Setup(ctx, args, cfg)
	if err != nil {
		ReportDisabled(ctx, err)
	}
	if err != nil || len(res.Attached) == 0 {
		restore(res)
		logger.InfoContext(ctx, "running plain build", "args", plain)
		return util.RunCmd(ctx, plain...)
	}
	if err = BuildWithToolexec(ctx, args); err != nil {
		ReportDisabled(ctx, ex.Wrapf(err, "instrumented build failed"))
		restore(res)
		logger.InfoContext(ctx, "running plain build", "args", plain)
		return util.RunCmd(ctx, plain...)
	}
	restore(res)
	logger.InfoContext(ctx, "instrumented build completed")
	return nil
}

// ReportDisabled tells the user, once, that the build runs without probes.
func ReportDisabled(ctx context.Context, err error) {
	util.LoggerFromContext(ctx).ErrorContext(ctx, "instrumentation disabled", "error", err)
	reason, _, _ := strings.Cut(err.Error(), "\n")
	_, _ = fmt.Fprintf(os.Stderr, "[entryprobe] instrumentation disabled: %s\n", reason)
}

// goVersion returns the version of the go command, "1.22.3" for go1.22.3.
func goVersion(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "go", "env", "GOVERSION").Output()
	if err != nil {
		return "", ex.Wrapf(err, "failed to run go env GOVERSION")
	}
	return strings.TrimSpace(string(out)), nil
}

// checkGoVersion accepts go version strings as printed by "go env GOVERSION".
// Development toolchains are accepted.
func checkGoVersion(raw string) error {
	if strings.HasPrefix(raw, "devel") {
		return nil
	}
	trimmed := strings.TrimPrefix(raw, "go")
	// "go1.22.3 X:nocoverageredesign" and similar
	trimmed, _, _ = strings.Cut(trimmed, " ")
	v, err := version.NewVersion(trimmed)
	if err != nil {
		return ex.Wrapf(err, "unrecognized go version %q", raw)
	}
	constraint, err := version.NewConstraint(">= " + MinGoVersion)
	if err != nil {
		return ex.Wrap(err)
	}
	// Pre-releases such as 1.23rc1 count as their release.
	if !constraint.Check(v.Core()) {
		return ex.Newf("go %s is too old, entryprobe needs go %s or newer", v, MinGoVersion)
	}
	return nil
}

// CheckToolchain fails when the go command is missing or older than
// MinGoVersion.
func CheckToolchain(ctx context.Context) error {
	raw, err := goVersion(ctx)
	if err != nil {
		return err
	}
	return checkGoVersion(raw)
}
