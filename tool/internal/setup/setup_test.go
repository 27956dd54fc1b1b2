// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package setup

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/util"
)

func TestBuildPatterns(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{name: "no patterns", args: []string{"build"}, expected: []string{"."}},
		{name: "single pattern", args: []string{"build", "./cmd"}, expected: []string{"./cmd"}},
		{name: "several patterns", args: []string{"build", "-a", ".", "./cmd"}, expected: []string{".", "./cmd"}},
		{name: "output flag value is not a package", args: []string{"build", "-o", "./tmp"}, expected: []string{"."}},
		{name: "output flag then package", args: []string{"build", "-o", "./tmp", "./app"}, expected: []string{"./app"}},
		{name: "install", args: []string{"install", "example.com/app"}, expected: []string{"example.com/app"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPatterns(tt.args))
		})
	}
}

func TestCheckGoVersion(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{version: "go1.21.0", ok: true},
		{version: "go1.24.3", ok: true},
		{version: "go1.23rc1", ok: true},
		{version: "go1.22.1 X:nocoverageredesign", ok: true},
		{version: "devel go1.25-1d45a7ef56 Tue Jan 7 10:02:43 2025 +0000", ok: true},
		{version: "go1.20.14", ok: false},
		{version: "go1.21rc2", ok: true},
		{version: "gccgo", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := checkGoVersion(tt.version)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestCheckToolchain(t *testing.T) {
	require.NoError(t, CheckToolchain(t.Context()))
}

func TestSetup_AttachesAndUndoes(t *testing.T) {
	const goMod = "module testmodule\n\ngo 1.21\n"
	moduleDir := setupTestModule(t, map[string]string{
		"main.go":    "package main\n\nimport \"testmodule/lib\"\n\nfunc main() { lib.Do(1) }\n",
		"lib/lib.go": "package lib\n\nfunc Do(n int) {}\n",
	})
	t.Setenv(util.EnvWorkDir, t.TempDir())

	target, err := rule.ParseTarget("typeName=testmodule/lib,methodName=Do")
	require.NoError(t, err)
	missing, err := rule.ParseTarget("typeName=testmodule/lib,methodName=Missing")
	require.NoError(t, err)

	res, err := Setup(t.Context(), []string{"build", "."}, &Config{Targets: []*rule.Target{target, missing}})
	require.NoError(t, err)
	require.Equal(t, []*rule.Target{target}, res.Attached)
	require.Len(t, res.RuntimeFiles, 1)
	assert.FileExists(t, res.RuntimeFiles[0])
	assert.DirExists(t, res.ProbeDir)

	trs, err := NewStore(util.GetTransformerFile()).Load()
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, "testmodule/lib", trs[0].Package)
	assert.Equal(t, []string{"testmodule/lib.Do"}, trs[0].Funcs)

	data, err := os.ReadFile(filepath.Join(moduleDir, "go.mod"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "replace "+util.ProbeRoot)

	res.Undo(t.Context())
	assert.NoFileExists(t, res.RuntimeFiles[0])
	assert.NoDirExists(t, res.ProbeDir)
	data, err = os.ReadFile(filepath.Join(moduleDir, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, goMod, string(data))
	assert.NoFileExists(t, filepath.Join(moduleDir, "go.sum"))
}

func TestSetup_NothingAttached(t *testing.T) {
	moduleDir := setupTestModule(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	t.Setenv(util.EnvWorkDir, t.TempDir())

	target, err := rule.ParseTarget("typeName=example.com/absent.C,methodName=m")
	require.NoError(t, err)

	res, err := Setup(t.Context(), []string{"build"}, &Config{Targets: []*rule.Target{target}})
	require.NoError(t, err)
	assert.Empty(t, res.Attached)
	assert.Empty(t, res.RuntimeFiles)
	assert.NoFileExists(t, filepath.Join(moduleDir, RuntimeFile))
	assert.NoFileExists(t, util.GetTransformerFile())
}

func TestGoBuild_FallsBackWhenToolexecFails(t *testing.T) {
	const goMod = "module testmodule\n\ngo 1.21\n"
	moduleDir := setupTestModule(t, map[string]string{
		"main.go":    "package main\n\nimport \"testmodule/lib\"\n\nfunc main() { lib.Do(1) }\n",
		"lib/lib.go": "package lib\n\nfunc Do(n int) {}\n",
	})
	t.Setenv(util.EnvWorkDir, t.TempDir())

	missing := filepath.Join(t.TempDir(), "no-such-entryprobe")
	saved := executable
	executable = func() (string, error) { return missing, nil }
	t.Cleanup(func() { executable = saved })

	target, err := rule.ParseTarget("typeName=testmodule/lib,methodName=Do")
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "app")

	err = GoBuild(t.Context(), []string{"build", "-o", out, "."}, &Config{Targets: []*rule.Target{target}})
	require.NoError(t, err)

	assert.FileExists(t, out)
	data, err := os.ReadFile(filepath.Join(moduleDir, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, goMod, string(data))
	assert.NoFileExists(t, filepath.Join(moduleDir, "go.sum"))
	assert.NoFileExists(t, filepath.Join(moduleDir, RuntimeFile))
}

func TestQuoteField(t *testing.T) {
	assert.Equal(t, "/usr/bin/entryprobe", quoteField("/usr/bin/entryprobe"))
	assert.Equal(t, "'/home/a b/entryprobe'", quoteField("/home/a b/entryprobe"))
	assert.Equal(t, `"/home/it's/entryprobe"`, quoteField("/home/it's/entryprobe"))
}

func TestSetupGoCache(t *testing.T) {
	t.Run("respects existing GOCACHE", func(t *testing.T) {
		t.Setenv("GOCACHE", "/existing/cache")
		env, err := setupGoCache(t.Context(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, e := range env {
			if strings.HasPrefix(e, "GOCACHE=") {
				t.Error("should not add GOCACHE when already set")
			}
		}
	})

	t.Run("creates persistent cache in the build temp dir", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv(util.EnvWorkDir, tempDir)
		if err := os.MkdirAll(util.GetBuildTempDir(), 0o755); err != nil {
			t.Fatal(err)
		}

		env, err := setupGoCache(t.Context(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var cacheDir string
		for _, e := range env {
			if strings.HasPrefix(e, "GOCACHE=") {
				cacheDir = strings.TrimPrefix(e, "GOCACHE=")
				break
			}
		}
		if cacheDir == "" {
			t.Fatal("GOCACHE not set in environment")
		}
		expectedCacheDir := util.GetBuildTemp("gocache")
		if cacheDir != expectedCacheDir {
			t.Errorf("expected cache directory %s, got %s", expectedCacheDir, cacheDir)
		}
		if _, statErr := os.Stat(cacheDir); os.IsNotExist(statErr) {
			t.Errorf("cache directory not created: %s", cacheDir)
		}
	})
}

func TestExtractBuildFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "no build flags",
			args:     []string{"build", "-o", "output", "./..."},
			expected: nil,
		},
		{
			name:     "tags with equals",
			args:     []string{"build", "-tags=integration,e2e", "./..."},
			expected: []string{"-tags=integration,e2e"},
		},
		{
			name:     "tags with space separator",
			args:     []string{"build", "-tags", "integration,e2e", "./..."},
			expected: []string{"-tags", "integration,e2e"},
		},
		{
			name:     "tags with spaces in value",
			args:     []string{"build", "-tags", "foo bar", "./..."},
			expected: []string{"-tags", "foo bar"},
		},
		{
			name:     "race flag",
			args:     []string{"build", "-race", "./..."},
			expected: []string{"-race"},
		},
		{
			name:     "mod flag",
			args:     []string{"build", "-mod=vendor", "./..."},
			expected: []string{"-mod=vendor"},
		},
		{
			name:     "multiple flags",
			args:     []string{"build", "-tags=foo", "-race", "-mod=vendor", "./..."},
			expected: []string{"-tags=foo", "-mod=vendor", "-race"}, // value flags first, then sorted bool flags
		},
		{
			name:     "mixed format",
			args:     []string{"build", "-tags", "foo", "-mod=readonly", "-cover", "./..."},
			expected: []string{"-tags", "foo", "-mod=readonly", "-cover"}, // value flags first, then sorted bool flags
		},
		{
			name:     "ignores non-context flags",
			args:     []string{"build", "-v", "-x", "-tags=foo", "-o", "output", "./..."},
			expected: []string{"-tags=foo"},
		},
		{
			name:     "modfile flag",
			args:     []string{"build", "-modfile=go.custom.mod", "./..."},
			expected: []string{"-modfile=go.custom.mod"},
		},
		{
			name:     "modfile with spaces in path",
			args:     []string{"build", "-modfile", "path with spaces/go.mod", "./..."},
			expected: []string{"-modfile", "path with spaces/go.mod"},
		},
		{
			name:     "race=true is normalized",
			args:     []string{"build", "-race=true", "./..."},
			expected: []string{"-race"},
		},
		{
			name:     "race=false is excluded",
			args:     []string{"build", "-race=false", "./..."},
			expected: []string{"-race=false"},
		},
		{
			name:     "cover=true is normalized",
			args:     []string{"build", "-cover=true", "./..."},
			expected: []string{"-cover"},
		},
		{
			name:     "mixed bool formats",
			args:     []string{"build", "-race=true", "-cover", "-msan=false", "./..."},
			expected: []string{"-cover", "-msan=false", "-race"}, // sorted alphabetically
		},
		{
			name:     "race=1 is truthy",
			args:     []string{"build", "-race=1", "./..."},
			expected: []string{"-race"},
		},
		{
			name:     "race=T is truthy",
			args:     []string{"build", "-race=T", "./..."},
			expected: []string{"-race"},
		},
		{
			name:     "race=TRUE is truthy",
			args:     []string{"build", "-race=TRUE", "./..."},
			expected: []string{"-race"},
		},
		{
			name:     "cover=True is truthy",
			args:     []string{"build", "-cover=True", "./..."},
			expected: []string{"-cover"},
		},
		{
			name:     "race=0 is falsy",
			args:     []string{"build", "-race=0", "./..."},
			expected: []string{"-race=false"},
		},
		{
			name:     "race=f is falsy",
			args:     []string{"build", "-race=f", "./..."},
			expected: []string{"-race=false"},
		},
		{
			name:     "race=FALSE is falsy",
			args:     []string{"build", "-race=FALSE", "./..."},
			expected: []string{"-race=false"},
		},
		{
			name:     "race=invalid is skipped",
			args:     []string{"build", "-race=invalid", "./..."},
			expected: nil,
		},
		// Override behavior tests - last value wins
		{
			name:     "race then race=false - false wins",
			args:     []string{"build", "-race", "-race=false", "./..."},
			expected: []string{"-race=false"},
		},
		{
			name:     "race=false then race - true wins",
			args:     []string{"build", "-race=false", "-race", "./..."},
			expected: []string{"-race"},
		},
		{
			name:     "race=true then race=false - false wins",
			args:     []string{"build", "-race=true", "-race=false", "./..."},
			expected: []string{"-race=false"},
		},
		{
			name:     "multiple overrides - last wins",
			args:     []string{"build", "-race", "-race=false", "-race=true", "-race=0", "./..."},
			expected: []string{"-race=false"}, // Last is -race=0 which is false
		},
		{
			name:     "cover disabled then enabled with tags",
			args:     []string{"build", "-cover=false", "-tags=foo", "-cover", "./..."},
			expected: []string{"-tags=foo", "-cover"}, // value flags first, then bool
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractBuildFlags(tt.args)
			if !slices.Equal(result, tt.expected) {
				t.Errorf("extractBuildFlags(%v) = %v, expected %v", tt.args, result, tt.expected)
			}
		})
	}
}
