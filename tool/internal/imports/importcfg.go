// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package imports reads and rewrites the importcfg files the go command
// hands to the compiler and the linker.
package imports

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/util"
)

// ImportConfig is the parsed form of an importcfg (or importcfg.link) file.
type ImportConfig struct {
	// PackageFile maps import paths to their archives
	PackageFile map[string]string
	// ImportMap maps import paths to their fully-qualified versions
	ImportMap map[string]string
	// Extras keeps the lines we don't interpret, e.g. modinfo
	Extras []string
}

func ParseImportCfg(filename string) (*ImportConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, ex.Wrapf(err, "opening importcfg %s", filename)
	}
	defer file.Close()
	return parse(file)
}

func parse(r io.Reader) (*ImportConfig, error) {
	cfg := &ImportConfig{
		PackageFile: make(map[string]string),
		ImportMap:   make(map[string]string),
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, data, _ := strings.Cut(line, " ")
		key, value, hasEq := strings.Cut(data, "=")
		switch {
		case directive == "packagefile" && hasEq:
			cfg.PackageFile[key] = value
		case directive == "importmap" && hasEq:
			cfg.ImportMap[key] = value
		default:
			cfg.Extras = append(cfg.Extras, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, ex.Wrapf(err, "scanning importcfg")
	}
	return cfg, nil
}

// AddMissing adds the archives whose import path is not configured yet and
// returns the added import paths in sorted order.
func (cfg *ImportConfig) AddMissing(archives map[string]string) []string {
	var added []string
	for pkg, archive := range archives {
		if _, ok := cfg.PackageFile[pkg]; ok {
			continue
		}
		cfg.PackageFile[pkg] = archive
		added = append(added, pkg)
	}
	slices.Sort(added)
	return added
}

// Bytes renders the config in the format expected by the toolchain, sorted
// so that rewriting an unchanged config is a no-op.
func (cfg *ImportConfig) Bytes() []byte {
	var buf bytes.Buffer
	for _, name := range slices.Sorted(maps.Keys(cfg.ImportMap)) {
		fmt.Fprintf(&buf, "importmap %s=%s\n", name, cfg.ImportMap[name])
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.PackageFile)) {
		fmt.Fprintf(&buf, "packagefile %s=%s\n", name, cfg.PackageFile[name])
	}
	for _, line := range cfg.Extras {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteFile replaces filename atomically.
func (cfg *ImportConfig) WriteFile(filename string) error {
	return util.WriteFileAtomic(filename, cfg.Bytes())
}
