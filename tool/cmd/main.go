// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/entryprobe/entryprobe/tool/ex"
	"github.com/entryprobe/entryprobe/tool/util"
)

const (
	exitCodeFailure    = 1
	exitCodeUsageError = 2

	debugLogFile = "debug.log"
)

const (
	flagTarget    = "target"
	flagConfig    = "config"
	flagProbePath = "probe-path"
	flagVerbose   = "verbose"
)

// initLogger sends the tool log to .entryprobe-build/debug.log. The log
// never reaches the terminal, so it cannot be mistaken for probe output.
func initLogger(ctx context.Context, _ *cli.Command) (context.Context, error) {
	if err := os.MkdirAll(util.GetBuildTempDir(), 0o755); err != nil {
		return ctx, ex.Wrapf(err, "failed to create %s", util.BuildTempDir)
	}
	var writer io.Writer = io.Discard
	logFile, err := os.OpenFile(util.GetBuildTemp(debugLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		writer = logFile
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("06/1/2 15:04:05"))
				}
			}
			return a
		},
	})
	return util.ContextWithLogger(ctx, slog.New(handler)), nil
}

func addLoggerPhaseAttribute(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	ctx, err := initLogger(ctx, cmd)
	if err != nil {
		return ctx, err
	}
	logger := util.LoggerFromContext(ctx).With("phase", cmd.Name, "pid", os.Getpid())
	return util.ContextWithLogger(ctx, logger), nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "entryprobe",
		Usage: "Log every call to a chosen function of a Go program, without editing its sources",
		// A target is itself a comma separated list.
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			// ENTRYPROBE_TARGET is read by loadConfig: env sources would be
			// split at every comma.
			&cli.StringSliceFlag{
				Name: flagTarget,
				Usage: "function to probe, e.g. typeName=example.com/a/b.C,methodName=m,argIndex=0; " +
					"repeatable, ';' separates targets, defaults to $" + util.EnvTarget,
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Usage:   "YAML file of named targets",
				Sources: cli.EnvVars(util.EnvConfig),
			},
			&cli.StringFlag{
				Name:    flagProbePath,
				Usage:   "local directory of the entryprobe module, used instead of the embedded probe",
				Sources: cli.EnvVars(util.EnvProbePath),
			},
		},
		Commands: []*cli.Command{
			&commandGo,
			&commandSetup,
			&commandToolexec,
			&commandVersion,
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "entryprobe: %v\n", err)
		os.Exit(exitCodeFailure)
	}
}
