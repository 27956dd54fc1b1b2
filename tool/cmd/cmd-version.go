// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"
)

// These variables are set by the linker.
//
//nolint:gochecknoglobals // these variables are set by the linker
var (
	Version    = "v0.0.0"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

//nolint:gochecknoglobals // Implementation of a CLI command
var commandVersion = cli.Command{
	Name:        "version",
	Description: "Print the version of the tool",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  flagVerbose,
			Usage: "Print additional information about the tool",
		},
	},
	Action: func(_ context.Context, cmd *cli.Command) error {
		line := "entryprobe version " + Version
		if CommitHash != "unknown" {
			line += "+" + CommitHash
		}
		if BuildTime != "unknown" {
			line += " (" + BuildTime + ")"
		}
		if _, err := fmt.Fprintln(cmd.Root().Writer, line); err != nil {
			return cli.Exit(err, exitCodeFailure)
		}

		if cmd.Bool(flagVerbose) {
			if _, err := fmt.Fprintf(cmd.Root().Writer, "%s\n", runtime.Version()); err != nil {
				return cli.Exit(err, exitCodeFailure)
			}
		}
		return nil
	},
}
