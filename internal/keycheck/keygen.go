// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package keycheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/toeirei/gitkeeper/internal/logging"
	"github.com/toeirei/gitkeeper/internal/sshkey"
)

// Keygen checks keys by running `<Command> -l -f <tempfile>`.
type Keygen struct {
	Command string
	Timeout time.Duration
	// TempDir is where the key file is written; empty uses os.TempDir.
	TempDir string
	Runner  Runner
}

// NewKeygen returns a Keygen using command (default "ssh-keygen") and
// timeout (default DefaultTimeout).
func NewKeygen(command string, timeout time.Duration) *Keygen {
	if command == "" {
		command = "ssh-keygen"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Keygen{Command: command, Timeout: timeout, Runner: ExecRunner{}}
}

type exitCoder interface {
	ExitCode() int
}

// Check writes key to a temporary file, fingerprints it and removes the file
// before returning, whatever the outcome.
func (k *Keygen) Check(ctx context.Context, key string) error {
	f, err := os.CreateTemp(k.TempDir, "gitkeeper-key-*.pub")
	if err != nil {
		return &ExternalToolError{Command: k.Command, Err: fmt.Errorf("create temp file: %w", err)}
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logging.Warnf("keycheck: could not remove %s: %v", path, rmErr)
		}
	}()

	if _, err := f.WriteString(key + "\n"); err != nil {
		_ = f.Close()
		return &ExternalToolError{Command: k.Command, Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := f.Close(); err != nil {
		return &ExternalToolError{Command: k.Command, Err: fmt.Errorf("close temp file: %w", err)}
	}

	timeout := k.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runner := k.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Run(runCtx, k.Command, "-l", "-f", path)
	if err == nil {
		logging.Debugf("keycheck: %s", strings.TrimSpace(string(out)))
		return nil
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		return &ExternalToolError{Command: k.Command, Err: ctxErr}
	}
	var ec exitCoder
	if errors.As(err, &ec) && ec.ExitCode() > 0 {
		reason := strings.TrimSpace(string(out))
		if reason == "" {
			reason = fmt.Sprintf("%s exited with status %d", k.Command, ec.ExitCode())
		}
		return &sshkey.MalformedKeyError{Reason: reason, Err: err}
	}
	return &ExternalToolError{Command: k.Command, Err: err}
}
