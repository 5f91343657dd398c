// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Command gitkeeper manages the SSH keys of a gitolite installation.
package main

import (
	"os"

	"github.com/toeirei/gitkeeper/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
