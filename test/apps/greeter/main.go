// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package main greets the name given on the command line.
package main

import (
	"flag"
	"fmt"

	"example.com/greeter/greeter"
)

var name = flag.String("name", "world", "who to greet")

func main() {
	flag.Parse()

	g := &greeter.Greeter{Greeting: "Hello"}
	fmt.Println(g.Hi(*name, 2))
	fmt.Println(greeter.Farewell(*name))
	fmt.Println(greeter.Version())
	fmt.Println(greeter.Here(), greeter.Where())
}
