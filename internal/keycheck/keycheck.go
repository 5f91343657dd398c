// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keycheck verifies that key material is a structurally valid SSH
// public key before it is stored.
//
// The default Checker hands the key to `ssh-keygen -l -f <file>` so the same
// tool that gitolite relies on gets the final word. A builtin checker based
// on golang.org/x/crypto/ssh is available for hosts without OpenSSH.
package keycheck

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gitkeeper/internal/sshkey"
)

// DefaultTimeout bounds a single ssh-keygen invocation.
const DefaultTimeout = 10 * time.Second

// Checker validates key material. Implementations return a
// *sshkey.MalformedKeyError when the key is rejected and an
// *ExternalToolError when the check itself could not be carried out.
type Checker interface {
	Check(ctx context.Context, key string) error
}

// ExternalToolError reports that the inspection tool could not be run to
// completion (missing binary, timeout, I/O failure). It is distinct from the
// tool running and rejecting the key.
type ExternalToolError struct {
	Command string
	Err     error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("key inspection with %q failed: %v", e.Command, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Builtin validates keys in-process with golang.org/x/crypto/ssh.
type Builtin struct{}

func (Builtin) Check(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return &ExternalToolError{Command: "builtin", Err: err}
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key)); err != nil {
		return &sshkey.MalformedKeyError{Reason: "not a valid public key", Err: err}
	}
	return nil
}

// New returns the checker for the configured mode: "builtin" or "external"
// (the default).
func New(mode, command string, timeout time.Duration) (Checker, error) {
	switch mode {
	case "", "external":
		return NewKeygen(command, timeout), nil
	case "builtin":
		return Builtin{}, nil
	default:
		return nil, fmt.Errorf("unknown keycheck mode %q", mode)
	}
}

// IsToolFailure reports whether err means the check could not be run, as
// opposed to the key being rejected.
func IsToolFailure(err error) bool {
	var te *ExternalToolError
	return errors.As(err, &te)
}
