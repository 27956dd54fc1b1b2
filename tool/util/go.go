// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"bufio"
	"os"
	"path"
	"strings"

	"github.com/entryprobe/entryprobe/tool/ex"
)

// toolName returns the base name of a toolchain binary without its ".exe"
// suffix, e.g. "/usr/local/go/pkg/tool/linux_amd64/compile" -> "compile".
func toolName(toolPath string) string {
	slashed := strings.ReplaceAll(toolPath, `\`, "/")
	return strings.TrimSuffix(path.Base(slashed), ".exe")
}

// HasFlag checks if the args slice contains the specified flag.
func HasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag || strings.HasPrefix(arg, flag+"=") {
			return true
		}
	}
	return false
}

func hasFlags(args []string, flags ...string) bool {
	for _, flag := range flags {
		if !HasFlag(args, flag) {
			return false
		}
	}
	return true
}

// IsCompileArgs checks if the args slice represents a compile command.
func IsCompileArgs(args []string) bool {
	if len(args) == 0 || toolName(args[0]) != "compile" {
		return false
	}
	if !hasFlags(args, "-o", "-p", "-buildid") {
		return false
	}
	// PGO compile command is different, skip it, otherwise the same package
	// would be seen twice
	return !HasFlag(args, "-pgoprofile")
}

// IsLinkArgs checks if the args slice represents a link command.
func IsLinkArgs(args []string) bool {
	if len(args) == 0 || toolName(args[0]) != "link" {
		return false
	}
	return hasFlags(args, "-o", "-buildid", "-importcfg")
}

// IsCompileCommand checks if a line of a build plan is a compile command.
func IsCompileCommand(line string) bool {
	return IsCompileArgs(SplitCompileCmds(line))
}

// FindFlagValue finds the value of a flag in the command line.
func FindFlagValue(cmd []string, flag string) string {
	flagWithValue := flag + "="
	for i, v := range cmd {
		if v == flag {
			if i+1 < len(cmd) {
				return cmd[i+1]
			}
			return ""
		}
		if strings.HasPrefix(v, flagWithValue) {
			return strings.TrimPrefix(v, flagWithValue)
		}
	}
	return ""
}

// StripFlag removes every occurrence of a boolean flag from args without
// touching the caller's slice.
func StripFlag(args []string, flag string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == flag {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// SplitCompileCmds splits the command line by space, but keep the quoted part
// as a whole. For example, "a b" c will be split into ["a b", "c"].
func SplitCompileCmds(input string) []string {
	var args []string
	var inQuotes bool
	var arg strings.Builder

	for i := range len(input) {
		c := input[i]

		if c == '"' {
			inQuotes = !inQuotes
			continue
		}

		if c == ' ' && !inQuotes {
			if arg.Len() > 0 {
				args = append(args, arg.String())
				arg.Reset()
			}
			continue
		}

		arg.WriteByte(c)
	}

	if arg.Len() > 0 {
		args = append(args, arg.String())
	}

	// Fix the escaped backslashes on Windows
	if IsWindows() {
		for i, arg := range args {
			args[i] = strings.ReplaceAll(arg, `\\`, `\`)
		}
	}
	return args
}

func IsGoFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".go")
}

func IsYamlFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".yaml") ||
		strings.HasSuffix(strings.ToLower(path), ".yml")
}

func NewFileScanner(file *os.File, size int) (*bufio.Scanner, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return nil, ex.Wrapf(err, "failed to seek file")
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, size), size)
	return scanner, nil
}
