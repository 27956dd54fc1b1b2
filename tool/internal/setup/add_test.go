// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// To update golden files after intentional changes:
//
//	go test -update ./tool/internal/setup/...

package setup

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"

	"github.com/entryprobe/entryprobe/tool/internal/rule"
)

func TestAddRuntimeFile(t *testing.T) {
	tests := []struct {
		sink       rule.SinkKind
		goldenFile string
	}{
		{sink: rule.SinkStderr, goldenFile: "stderr.entryprobe.runtime.go.golden"},
		{sink: rule.SinkOtel, goldenFile: "otel.entryprobe.runtime.go.golden"},
	}
	for _, tt := range tests {
		t.Run(string(tt.sink), func(t *testing.T) {
			dir := t.TempDir()
			path, err := addRuntimeFile(dir, tt.sink, "")
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, RuntimeFile), path)

			content, err := os.ReadFile(path)
			require.NoError(t, err)
			golden.Assert(t, string(content), tt.goldenFile)
		})
	}
}

func TestAddRuntimeFile_OTLPJSON(t *testing.T) {
	dir := t.TempDir()
	sinkPath := filepath.Join(dir, `records "a".jsonl`)
	path, err := addRuntimeFile(dir, rule.SinkOTLPJSON, sinkPath)
	require.NoError(t, err)

	f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ImportsOnly)
	require.NoError(t, err)
	require.Len(t, f.Imports, 2)
	assert.Equal(t, `"github.com/entryprobe/entryprobe/pkg/probe/otlpsink"`, f.Imports[1].Path.Value)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `records \"a\".jsonl`)
}

func TestChooseSink(t *testing.T) {
	stderr := &rule.Target{Sink: rule.SinkStderr}
	otel := &rule.Target{Sink: rule.SinkOtel}
	fileA := &rule.Target{Sink: rule.SinkOTLPJSON, SinkPath: "a.jsonl"}
	fileB := &rule.Target{Sink: rule.SinkOTLPJSON, SinkPath: "b.jsonl"}

	tests := []struct {
		name    string
		targets []*rule.Target
		sink    rule.SinkKind
		path    string
		ignored []*rule.Target
	}{
		{name: "none", sink: rule.SinkStderr},
		{name: "stderr only", targets: []*rule.Target{stderr, {}}, sink: rule.SinkStderr},
		{name: "first other sink wins", targets: []*rule.Target{stderr, otel, fileA}, sink: rule.SinkOtel, ignored: []*rule.Target{fileA}},
		{name: "same sink twice", targets: []*rule.Target{fileA, fileA}, sink: rule.SinkOTLPJSON, path: "a.jsonl"},
		{name: "different paths", targets: []*rule.Target{fileA, fileB}, sink: rule.SinkOTLPJSON, path: "a.jsonl", ignored: []*rule.Target{fileB}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, path, ignored := chooseSink(tt.targets)
			assert.Equal(t, tt.sink, sink)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.ignored, ignored)
		})
	}
}
