// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os/exec"

	"github.com/urfave/cli/v3"

	"github.com/entryprobe/entryprobe/tool/internal/setup"
	"github.com/entryprobe/entryprobe/tool/util"
)

// isBuildCommand reports whether "go <args>" compiles and links a program.
func isBuildCommand(args []string) bool {
	return len(args) > 0 && (args[0] == "build" || args[0] == "install")
}

// exitWithGoStatus keeps the exit code of a failed go command.
func exitWithGoStatus(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return cli.Exit("", exitErr.ExitCode())
	}
	return cli.Exit(err, exitCodeFailure)
}

//nolint:gochecknoglobals // Implementation of a CLI command
var commandGo = cli.Command{
	Name:            "go",
	Description:     "Invoke the go toolchain with every configured probe woven in",
	ArgsUsage:       "build|install [go build flags] [packages]",
	SkipFlagParsing: true,
	Before:          addLoggerPhaseAttribute,
	Action: func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args().Slice()
		if len(args) == 0 {
			return cli.Exit("missing go command, e.g. entryprobe go build ./cmd/app", exitCodeUsageError)
		}
		if !isBuildCommand(args) {
			return exitWithGoStatus(util.RunCmd(ctx, append([]string{"go"}, args...)...))
		}

		cfg, errs := loadConfig(cmd)
		for _, err := range errs {
			setup.ReportDisabled(ctx, err)
		}
		return exitWithGoStatus(setup.GoBuild(ctx, args, cfg))
	},
}
