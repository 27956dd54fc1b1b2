// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/plog"
)

// Fixture builds and runs one of the applications under test/apps with
// the entryprobe tool.
type Fixture struct {
	t      *testing.T
	appDir string
	flags  []string
	env    []string
}

type FixtureOption func(*Fixture)

// WithTarget adds a --target flag to the build.
func WithTarget(target string) FixtureOption {
	return func(f *Fixture) {
		f.flags = append(f.flags, "--target", target)
	}
}

// WithConfig adds a --config flag to the build.
func WithConfig(path string) FixtureOption {
	return func(f *Fixture) {
		f.flags = append(f.flags, "--config", path)
	}
}

// WithEnv adds KEY=value entries to the environment of the build.
func WithEnv(env ...string) FixtureOption {
	return func(f *Fixture) {
		f.env = append(f.env, env...)
	}
}

func NewFixture(t *testing.T, appName string, opts ...FixtureOption) *Fixture {
	pwd, err := os.Getwd()
	require.NoError(t, err)
	f := &Fixture{
		t:      t,
		appDir: filepath.Join(pwd, "..", "apps", appName),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fixture) Dir() string {
	return f.appDir
}

// Build builds the application and returns what the tool printed.
func (f *Fixture) Build() string {
	return Build(f.t, f.appDir, f.env, f.flags...)
}

// BuildPlain builds the application with the go command alone.
func (f *Fixture) BuildPlain() {
	BuildPlain(f.t, f.appDir)
}

// Run runs the built application and returns its stdout and stderr.
func (f *Fixture) Run(args ...string) (string, string) {
	return Run(f.t, f.appDir, args...)
}

// BuildAndRun builds the application, checks that the module files were
// restored, and runs it.
func (f *Fixture) BuildAndRun(args ...string) (string, string) {
	goMod, err := os.ReadFile(filepath.Join(f.appDir, "go.mod"))
	require.NoError(f.t, err)
	f.Build()
	f.checkRestored(goMod)
	return f.Run(args...)
}

func (f *Fixture) checkRestored(goMod []byte) {
	after, err := os.ReadFile(filepath.Join(f.appDir, "go.mod"))
	require.NoError(f.t, err)
	require.Equal(f.t, string(goMod), string(after), "go.mod was not restored")
	require.NoFileExists(f.t, filepath.Join(f.appDir, "go.sum"))
}

const probePrefix = "[entryprobe] "

// ProbeCalls returns the first line of every record a stderr sink printed.
func ProbeCalls(stderr string) []string {
	var calls []string
	for _, line := range strings.Split(stderr, "\n") {
		rest, ok := strings.CutPrefix(line, probePrefix)
		if ok && strings.Contains(rest, " called") {
			calls = append(calls, rest)
		}
	}
	return calls
}

// ReadLogRecords decodes a file written by the otlp-json sink.
func ReadLogRecords(t *testing.T, path string) []plog.LogRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var (
		u       plog.JSONUnmarshaler
		records []plog.LogRecord
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		logs, err := u.UnmarshalLogs(scanner.Bytes())
		require.NoError(t, err)
		rls := logs.ResourceLogs()
		for i := range rls.Len() {
			sls := rls.At(i).ScopeLogs()
			for j := range sls.Len() {
				lrs := sls.At(j).LogRecords()
				for k := range lrs.Len() {
					records = append(records, lrs.At(k))
				}
			}
		}
	}
	require.NoError(t, scanner.Err())
	return records
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
