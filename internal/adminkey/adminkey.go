// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package adminkey provides the gitolite administrator public key. The key
// belongs to no owner but must never be handed out to anybody else.
package adminkey

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Source returns the administrator key material. An empty string means no
// administrator key is configured.
type Source interface {
	AdminKey(ctx context.Context) (string, error)
}

// File reads the key from Path on every call so a rotated key is picked up
// without restart.
type File struct {
	Path string
}

func (f File) AdminKey(ctx context.Context) (string, error) {
	if f.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read gitolite admin key %s: %w", f.Path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Static is a fixed administrator key, mostly for tests.
type Static string

func (s Static) AdminKey(context.Context) (string, error) {
	return string(s), nil
}

// None is a Source without administrator key.
var None Source = Static("")
