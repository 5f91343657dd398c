// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for gitkeeper.
//
// Usage:
//
//	go run . [flags]
//	./gitkeeper [flags]
//
// See --help for options. The same CLI is built from cmd/gitkeeper.
package main

import (
	"fmt"
	"os"

	"github.com/toeirei/gitkeeper/ui/cli"
)

// version is set at build time using -ldflags, e.g.:
// go build -ldflags "-X main.version=1.2.3"
var version = "dev"

func main() {
	if os.Getenv("GITKEEPER_SHOW_VERSION") == "1" {
		fmt.Fprintf(os.Stderr, "gitkeeper version: %s\n", version)
	}
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
