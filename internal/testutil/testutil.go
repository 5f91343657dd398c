// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds small helpers shared by package tests.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

var memCounter atomic.Int64

// NewAuthorizedKey generates a fresh ed25519 key pair and returns the public
// half in authorized_keys format, without trailing newline.
func NewAuthorizedKey(t testing.TB, comment string) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("ssh.NewPublicKey: %v", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		line += " " + comment
	}
	return line
}

// MemoryDSN returns a DSN for a private, shared-cache in-memory SQLite
// database so parallel tests do not see each other's rows.
func MemoryDSN(t testing.TB) string {
	t.Helper()
	return fmt.Sprintf("file:gitkeeper_test_%d?mode=memory&cache=shared", memCounter.Add(1))
}
