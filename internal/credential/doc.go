// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// Package credential runs the lifecycle of gitolite SSH credentials.
//
// A save goes through these steps:
//   - the title is trimmed and, for new records, the key text normalized
//   - an identifier is assigned when missing and the owner is known
//   - presence, length and key kind are checked
//   - write-once fields (identifier, key, owner, key kind) are compared
//     against the stored record
//   - malformed key text stops here; otherwise the external format check
//     result is added
//   - new records are compared against the administrator key and every
//     active credential by payload
//   - title and identifier must be unique within the owner
//
// Every failure ends up in one *ValidationErrors and nothing is written.
// Creating, locking, unlocking, resetting and destroying a credential write
// resync events to the outbox in the same transaction and also return them
// to the caller.
package credential
