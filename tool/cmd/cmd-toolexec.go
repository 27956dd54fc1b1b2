// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/entryprobe/entryprobe/tool/internal/instrument"
)

// invokedByToolchain reports whether the go command runs us as -toolexec.
// Per-package actions carry TOOLEXEC_IMPORTPATH; the build ID query of the
// tool itself ("compile -V=full") carries nothing but the flag.
func invokedByToolchain(args []string) bool {
	if _, ok := os.LookupEnv("TOOLEXEC_IMPORTPATH"); ok {
		return true
	}
	return slices.Contains(args, "-V=full")
}

//nolint:gochecknoglobals // Implementation of a CLI command
var commandToolexec = cli.Command{
	Name:            "toolexec",
	Description:     "Wrap a command run by the go toolchain",
	SkipFlagParsing: true,
	Hidden:          true,
	Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if !invokedByToolchain(cmd.Args().Slice()) {
			return ctx, cli.Exit("toolexec can only be invoked by the go toolchain", exitCodeUsageError)
		}

		return addLoggerPhaseAttribute(ctx, cmd)
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return exitWithGoStatus(instrument.Toolexec(ctx, cmd.Args().Slice()))
	},
}
