// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/internal/rule"
	"github.com/entryprobe/entryprobe/tool/internal/setup"
	"github.com/entryprobe/entryprobe/tool/util"
)

// targetValues returns the --target values, or ENTRYPROBE_TARGET when no
// flag was given. Only ';' separates targets in either.
func targetValues(cmd *cli.Command) []string {
	if values := cmd.StringSlice(flagTarget); len(values) > 0 {
		return values
	}
	if env := os.Getenv(util.EnvTarget); env != "" {
		return []string{env}
	}
	return nil
}

// loadConfig collects the targets of --target and --config. A target that
// does not parse is returned as an error and left out; the others still
// count.
func loadConfig(cmd *cli.Command) (*setup.Config, []error) {
	cfg := &setup.Config{ProbePath: cmd.String(flagProbePath)}
	var errs []error
	for _, value := range targetValues(cmd) {
		for _, config := range strings.Split(value, ";") {
			if strings.TrimSpace(config) == "" {
				continue
			}
			target, err := rule.ParseTarget(config)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			cfg.Targets = append(cfg.Targets, target)
		}
	}
	if path := cmd.String(flagConfig); path != "" {
		if !util.IsYamlFile(path) {
			errs = append(errs, ex.Wrapf(rule.ErrInvalidTarget, "target file %s is not a .yaml or .yml file", path))
			return cfg, errs
		}
		targets, err := rule.LoadTargetFile(path)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.Targets = append(cfg.Targets, targets...)
	}
	return cfg, errs
}
