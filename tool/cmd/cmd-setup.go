// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/entryprobe/entryprobe/tool/internal/setup"
)

//nolint:gochecknoglobals // Implementation of a CLI command
var commandSetup = cli.Command{
	Name: "setup",
	Description: "Install the configured probes without building. The runtime file and " +
		"go.mod changes stay in place for a later go build -toolexec",
	ArgsUsage:       "[build|install] [go build flags] [packages]",
	SkipFlagParsing: true,
	Before:          addLoggerPhaseAttribute,
	Action: func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args().Slice()
		if !isBuildCommand(args) {
			args = append([]string{"build"}, args...)
		}
		cfg, errs := loadConfig(cmd)
		for _, err := range errs {
			setup.ReportDisabled(ctx, err)
		}
		if err := setup.CheckToolchain(ctx); err != nil {
			return cli.Exit(err, exitCodeFailure)
		}
		res, err := setup.Setup(ctx, args, cfg)
		if err != nil {
			return cli.Exit(err, exitCodeFailure)
		}
		_, err = fmt.Fprintf(cmd.Root().Writer, "%d of %d probes attached\n", len(res.Attached), len(cfg.Targets))
		return err
	},
}
