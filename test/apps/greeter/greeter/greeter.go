// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package greeter is the instrumented code of the integration tests.
package greeter

import (
	"fmt"
	"path/filepath"
	"runtime"
)

type Greeter struct {
	Greeting string
}

func (g *Greeter) Hello(name string) string {
	return fmt.Sprintf("%s, %s!", g.Greeting, name)
}

func (g *Greeter) Hi(name string, times int) string {
	s := ""
	for i := 0; i < times; i++ {
		s += g.Hello(name) + " "
	}
	return s
}

//entryprobe:trace
func Farewell(name string) string {
	return "Goodbye, " + name
}

func Version() string {
	return "greeter v1"
}

// Where returns the file and line it was called from.
func Where() string {
	_, file, line, _ := runtime.Caller(1)
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Here returns its own file and line.
func Here() string {
	_, file, line, _ := runtime.Caller(0)
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
