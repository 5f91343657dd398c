// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package sshkey

import (
	"errors"
	"fmt"
)

// ErrMalformedKey matches every MalformedKeyError via errors.Is.
var ErrMalformedKey = errors.New("malformed ssh public key")

// MalformedKeyError reports key text that is not a well-formed SSH public key.
type MalformedKeyError struct {
	Reason string
	Err    error
}

func (e *MalformedKeyError) Error() string {
	if e.Reason == "" {
		return ErrMalformedKey.Error()
	}
	return fmt.Sprintf("%s: %s", ErrMalformedKey.Error(), e.Reason)
}

func (e *MalformedKeyError) Unwrap() error { return e.Err }

func (e *MalformedKeyError) Is(target error) bool { return target == ErrMalformedKey }
