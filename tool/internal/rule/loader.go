// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package rule

import (
	"bytes"
	"errors"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/entryprobe/entryprobe/tool/ex"
)

// LoadTargetFile reads named targets from a YAML file:
//
//	greet:
//	  type: example.com/app/greeter.Greeter
//	  method: Hello
//	  args: [0]
//
// Targets are returned sorted by name so installs happen in a stable order.
func LoadTargetFile(path string) ([]*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ex.Wrapf(err, "failed to read target file %s", path)
	}
	return ParseTargetYAML(data)
}

func ParseTargetYAML(data []byte) ([]*Target, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var h map[string]*Target
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("target file is empty")
		}
		return nil, invalid("%v", err)
	}
	if len(h) == 0 {
		return nil, invalid("target file is empty")
	}
	targets := make([]*Target, 0, len(h))
	for name, t := range h {
		if t == nil {
			return nil, invalid("target %q has no fields", name)
		}
		t.Name = name
		if err := t.Validate(); err != nil {
			return nil, ex.Wrapf(err, "target %q", name)
		}
		targets = append(targets, t)
	}
	slices.SortFunc(targets, func(a, b *Target) int {
		return strings.Compare(a.Name, b.Name)
	})
	return targets, nil
}
