// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core data structures of gitkeeper: owners, SSH
// credentials, their deployment associations and audit entries.
package model // import "github.com/toeirei/gitkeeper/internal/model"

import "time"

// Owner is the account an SSH credential belongs to. Owners are managed
// outside of the credential core; gitkeeper only reads them.
type Owner struct {
	ID    int64
	Login string
	// GitoliteIdentifier is the handle used for the owner inside the
	// access-control configuration. It prefixes every credential identifier.
	GitoliteIdentifier string
	// Admin marks a privileged owner. Privileged requesters get detailed
	// conflict information when a key is already in use.
	Admin     bool
	CreatedAt time.Time
}

// String returns the owner's login.
func (o Owner) String() string {
	return o.Login
}

// Is reports whether o and other denote the same owner.
func (o *Owner) Is(other *Owner) bool {
	if o == nil || other == nil {
		return false
	}
	return o.ID == other.ID
}

// AuditLogEntry is a single row of the audit trail.
type AuditLogEntry struct {
	ID        int
	Timestamp string
	Username  string
	Action    string
	Details   string
}
